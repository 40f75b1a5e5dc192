package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordFailure is a write that failed for one key during a pass.
type RecordFailure struct {
	Key string
	Err error
}

// ReconcileReport summarizes one reconciliation pass for one source.
type ReconcileReport struct {
	SourceName  string
	At          time.Time
	Created     int
	Updated     int
	Unchanged   int
	Reactivated int
	Retired     int
	Skipped     int
	Duplicates  int
	CreatedKeys []string
	Failures    []RecordFailure
}

// SourceResult is one source's line in a RunSummary.
type SourceResult struct {
	Name        string
	Fetched     int
	Created     int
	Updated     int
	Unchanged   int
	Reactivated int
	Retired     int
	Skipped     int
	Failed      int
	Error       string
	// RetirementSkipped is set when the pass did not retire anything because the fetch failed.
	RetirementSkipped bool
	Duration          time.Duration
}

// OK reports whether the source completed without a pass-level error.
func (r SourceResult) OK() bool {
	return r.Error == ""
}

// ApplyReport copies the counters of a reconcile report.
func (r *SourceResult) ApplyReport(rep ReconcileReport) {
	r.Created = rep.Created
	r.Updated = rep.Updated
	r.Unchanged = rep.Unchanged
	r.Reactivated = rep.Reactivated
	r.Retired = rep.Retired
	r.Skipped = rep.Skipped
	r.Failed = len(rep.Failures)
}

// RunSummary aggregates one orchestrator run over several sources.
type RunSummary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	PerSource  []SourceResult
}

func (s RunSummary) Succeeded() []SourceResult {
	res := make([]SourceResult, 0, len(s.PerSource))
	for _, r := range s.PerSource {
		if r.OK() {
			res = append(res, r)
		}
	}
	return res
}

func (s RunSummary) Failed() []SourceResult {
	res := make([]SourceResult, 0)
	for _, r := range s.PerSource {
		if !r.OK() {
			res = append(res, r)
		}
	}
	return res
}

// Totals sums the counters across sources.
func (s RunSummary) Totals() SourceResult {
	var t SourceResult
	t.Name = "total"
	for _, r := range s.PerSource {
		t.Fetched += r.Fetched
		t.Created += r.Created
		t.Updated += r.Updated
		t.Unchanged += r.Unchanged
		t.Reactivated += r.Reactivated
		t.Retired += r.Retired
		t.Skipped += r.Skipped
		t.Failed += r.Failed
	}
	t.Duration = s.FinishedAt.Sub(s.StartedAt)
	return t
}
