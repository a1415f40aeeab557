// Package metrics exposes Prometheus counters for scrape runs, refresh
// passes and enrichment. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// Namespace prefixes every metric.
const Namespace = "jobleads"

// Listing outcomes used as the "outcome" label.
const (
	OutcomeFound     = "found"
	OutcomeNew       = "new"
	OutcomeUpdated   = "updated"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Metrics holds all collectors.
type Metrics struct {
	Listings          *prometheus.CounterVec
	SmartStops        *prometheus.CounterVec
	SourceRuns        *prometheus.CounterVec
	SourceDuration    *prometheus.HistogramVec
	RunsActive        prometheus.Gauge
	ContactPages      *prometheus.CounterVec
	RefreshCompanies  *prometheus.CounterVec
	RefreshRankChange *prometheus.CounterVec
	EnrichCalls       *prometheus.CounterVec
}

// New creates and registers the collectors on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Listings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "listings_total",
			Help:      "Listings processed by source and outcome",
		}, []string{"source", "outcome"}),
		SmartStops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "smart_stops_total",
			Help:      "Sources stopped early on consecutive duplicates",
		}, []string{"source"}),
		SourceRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "source_runs_total",
			Help:      "Completed source runs by log status",
		}, []string{"source", "status"}),
		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "source_duration_seconds",
			Help:      "Wall time of one source within a run",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~43min
		}, []string{"source"}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "scrape",
			Name:      "runs_active",
			Help:      "1 while a scrape run is in progress",
		}),
		ContactPages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "contact",
			Name:      "pages_total",
			Help:      "Company pages visited by the contact extractor",
		}, []string{"result"}),
		RefreshCompanies: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh",
			Name:      "companies_total",
			Help:      "Companies re-checked by outcome",
		}, []string{"outcome"}),
		RefreshRankChange: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "refresh",
			Name:      "rank_changes_total",
			Help:      "Budget rank changes by direction",
		}, []string{"direction"}),
		EnrichCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "enrich",
			Name:      "calls_total",
			Help:      "Enrichment lookups by service and result",
		}, []string{"service", "result"}),
	}
}

// Listing counts one listing outcome for src.
func (m *Metrics) Listing(src model.Source, outcome string) {
	if m == nil {
		return
	}
	m.Listings.WithLabelValues(string(src), outcome).Inc()
}

// SmartStop counts an early stop of src.
func (m *Metrics) SmartStop(src model.Source) {
	if m == nil {
		return
	}
	m.SmartStops.WithLabelValues(string(src)).Inc()
}

// SourceDone records the end of one source run.
func (m *Metrics) SourceDone(src model.Source, status model.LogStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.SourceRuns.WithLabelValues(string(src), string(status)).Inc()
	m.SourceDuration.WithLabelValues(string(src)).Observe(d.Seconds())
}

// RunActive flips the active-run gauge.
func (m *Metrics) RunActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.RunsActive.Set(1)
		return
	}
	m.RunsActive.Set(0)
}

// ContactVisited counts contact extractor page visits; result is "found"
// when the pass completed with any contact data, otherwise "empty".
func (m *Metrics) ContactVisited(pages int, found bool) {
	if m == nil {
		return
	}
	result := "empty"
	if found {
		result = "found"
	}
	m.ContactPages.WithLabelValues(result).Add(float64(pages))
}

// RefreshCompany counts one refreshed company ("changed", "unchanged" or
// "error").
func (m *Metrics) RefreshCompany(outcome string) {
	if m == nil {
		return
	}
	m.RefreshCompanies.WithLabelValues(outcome).Inc()
}

// RankChange counts a budget rank change.
func (m *Metrics) RankChange(dir model.Direction) {
	if m == nil || dir == "" {
		return
	}
	m.RefreshRankChange.WithLabelValues(string(dir)).Inc()
}

// Enrich counts one enrichment lookup.
func (m *Metrics) Enrich(service, result string) {
	if m == nil {
		return
	}
	m.EnrichCalls.WithLabelValues(service, result).Inc()
}
