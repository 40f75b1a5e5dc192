// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"eventsCatalog/internal/models/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "events_catalog"

// Metrics owns its registry so tests and multiple instances never collide.
type Metrics struct {
	Registry *prometheus.Registry

	runs           *prometheus.CounterVec
	records        *prometheus.CounterVec
	fetched        *prometheus.GaugeVec
	runDuration    *prometheus.HistogramVec
	lastSuccess    *prometheus.GaugeVec
	categorizerOps *prometheus.CounterVec
	curation       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_runs_total",
			Help:      "Source runs by outcome (ok, partial, failed, busy)",
		}, []string{"source", "outcome"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciled_records_total",
			Help:      "Records handled by reconciliation, by result",
		}, []string{"source", "result"}),
		fetched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_fetched_events",
			Help:      "Events returned by the last fetch of a source",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_run_duration_seconds",
			Help:      "Time spent fetching and reconciling one source",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_last_success_timestamp_seconds",
			Help:      "Unix time of the last run without a pass-level error",
		}, []string{"source"}),
		categorizerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categorizer_jobs_total",
			Help:      "Category enrichment jobs by outcome",
		}, []string{"outcome"}),
		curation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curation_actions_total",
			Help:      "Operator curation actions by kind",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.runs, m.records, m.fetched, m.runDuration, m.lastSuccess, m.categorizerOps, m.curation,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveSource records one source's line of a run summary.
func (m *Metrics) ObserveSource(r domain.SourceResult, at time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(r.Name, Outcome(r)).Inc()
	m.runDuration.WithLabelValues(r.Name).Observe(r.Duration.Seconds())
	m.fetched.WithLabelValues(r.Name).Set(float64(r.Fetched))

	add := func(result string, n int) {
		if n > 0 {
			m.records.WithLabelValues(r.Name, result).Add(float64(n))
		}
	}
	add("created", r.Created)
	add("updated", r.Updated)
	add("reactivated", r.Reactivated)
	add("unchanged", r.Unchanged)
	add("retired", r.Retired)
	add("skipped", r.Skipped)
	add("failed", r.Failed)

	if r.OK() {
		m.lastSuccess.WithLabelValues(r.Name).Set(float64(at.Unix()))
	}
}

// SourceBusy counts a run rejected because the source was already running.
func (m *Metrics) SourceBusy(source string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(source, "busy").Inc()
}

func (m *Metrics) CategorizerJob(outcome string) {
	if m == nil {
		return
	}
	m.categorizerOps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Curation(action string) {
	if m == nil {
		return
	}
	m.curation.WithLabelValues(action).Inc()
}

// Outcome labels a source result: ok, partial (fetch failed after some events), failed.
func Outcome(r domain.SourceResult) string {
	switch {
	case r.OK():
		return "ok"
	case r.RetirementSkipped && r.Fetched > 0:
		return "partial"
	default:
		return "failed"
	}
}
