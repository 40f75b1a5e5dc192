package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventsCatalog/internal/models/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSource(t *testing.T) {
	m := New()
	at := time.Unix(1_800_000_000, 0)

	m.ObserveSource(domain.SourceResult{Name: "tm", Fetched: 4, Created: 2, Unchanged: 1, Retired: 3, Duration: time.Second}, at)
	m.ObserveSource(domain.SourceResult{Name: "tm", Fetched: 1, Created: 1, Error: "boom", RetirementSkipped: true}, at.Add(time.Hour))

	if got := testutil.ToFloat64(m.runs.WithLabelValues("tm", "ok")); got != 1 {
		t.Errorf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("tm", "partial")); got != 1 {
		t.Errorf("partial runs = %v", got)
	}
	if got := testutil.ToFloat64(m.records.WithLabelValues("tm", "created")); got != 3 {
		t.Errorf("created = %v", got)
	}
	if got := testutil.ToFloat64(m.records.WithLabelValues("tm", "retired")); got != 3 {
		t.Errorf("retired = %v", got)
	}
	if got := testutil.ToFloat64(m.fetched.WithLabelValues("tm")); got != 1 {
		t.Errorf("fetched gauge = %v", got)
	}
	// The failed run must not move the success timestamp.
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("tm")); got != float64(at.Unix()) {
		t.Errorf("last success = %v", got)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		r    domain.SourceResult
		want string
	}{
		{domain.SourceResult{}, "ok"},
		{domain.SourceResult{Error: "x", RetirementSkipped: true, Fetched: 2}, "partial"},
		{domain.SourceResult{Error: "x", RetirementSkipped: true}, "failed"},
		{domain.SourceResult{Error: "x"}, "failed"},
	}
	for _, tt := range tests {
		if got := Outcome(tt.r); got != tt.want {
			t.Errorf("Outcome(%+v) = %s, want %s", tt.r, got, tt.want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.SourceBusy("eb")
	m.CategorizerJob("ok")
	m.Curation("import")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`events_catalog_source_runs_total{outcome="busy",source="eb"} 1`,
		`events_catalog_categorizer_jobs_total{outcome="ok"} 1`,
		`events_catalog_curation_actions_total{action="import"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q", want)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSource(domain.SourceResult{Name: "x"}, time.Now())
	m.SourceBusy("x")
	m.CategorizerJob("ok")
	m.Curation("archive")
}
