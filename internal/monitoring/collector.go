package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/store"
)

// SourceStats aggregates one source's scraping logs within the window.
type SourceStats struct {
	Source      model.Source `json:"source"`
	Runs        int          `json:"runs"`
	Success     int          `json:"success"`
	Partial     int          `json:"partial"`
	Failed      int          `json:"failed"`
	Found       int          `json:"found"`
	New         int          `json:"new"`
	Errors      int          `json:"errors"`
	SmartStops  int          `json:"smart_stops"`
	FailureRate float64      `json:"failure_rate"`
	LastRunAt   *time.Time   `json:"last_run_at,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// Snapshot is a point-in-time view of scrape health.
type Snapshot struct {
	Sources []SourceStats `json:"sources"`

	TotalRuns   int     `json:"total_runs"`
	Failed      int     `json:"failed"`
	Partial     int     `json:"partial"`
	FailureRate float64 `json:"failure_rate"`

	// SilentSources are expected sources with no log in the window, or
	// whose every run found nothing.
	SilentSources []model.Source `json:"silent_sources,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Stats returns the stats for src, or nil.
func (s *Snapshot) Stats(src model.Source) *SourceStats {
	for i := range s.Sources {
		if s.Sources[i].Source == src {
			return &s.Sources[i]
		}
	}
	return nil
}

// LogLister is the log query the collector needs.
type LogLister interface {
	ListLogs(ctx context.Context, filter store.LogFilter) ([]model.ScrapingLog, error)
}

// Collector builds snapshots from scraping logs.
type Collector struct {
	logs     LogLister
	expected []model.Source
	now      func() time.Time
}

// NewCollector creates a collector. expected lists the sources that should
// appear in every window.
func NewCollector(logs LogLister, expected []model.Source) *Collector {
	return &Collector{logs: logs, expected: expected, now: func() time.Time { return time.Now().UTC() }}
}

// Collect summarizes the logs written in the last lookbackHours.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}

	entries, err := c.logs.ListLogs(ctx, store.LogFilter{
		Since: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit: 10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list logs")
	}

	bySource := map[model.Source]*SourceStats{}
	for _, src := range c.expected {
		bySource[src] = &SourceStats{Source: src}
	}
	for _, e := range entries {
		st, ok := bySource[e.Source]
		if !ok {
			st = &SourceStats{Source: e.Source}
			bySource[e.Source] = st
		}
		st.Runs++
		st.Found += e.JobsFound
		st.New += e.NewJobs
		st.Errors += e.Errors
		if e.SmartStopped {
			st.SmartStops++
		}
		switch e.Status {
		case model.LogStatusSuccess:
			st.Success++
		case model.LogStatusPartial:
			st.Partial++
		case model.LogStatusError:
			st.Failed++
		}
		if st.LastRunAt == nil || e.StartedAt.After(*st.LastRunAt) {
			started := e.StartedAt
			st.LastRunAt = &started
			st.LastError = e.ErrorMessage
		}
	}

	for _, st := range bySource {
		if st.Runs > 0 {
			st.FailureRate = float64(st.Failed) / float64(st.Runs)
		}
		snap.TotalRuns += st.Runs
		snap.Failed += st.Failed
		snap.Partial += st.Partial
		snap.Sources = append(snap.Sources, *st)
	}
	sort.Slice(snap.Sources, func(i, j int) bool { return snap.Sources[i].Source < snap.Sources[j].Source })
	if snap.TotalRuns > 0 {
		snap.FailureRate = float64(snap.Failed) / float64(snap.TotalRuns)
	}

	for _, src := range c.expected {
		if st := bySource[src]; st.Runs == 0 || st.Found == 0 {
			snap.SilentSources = append(snap.SilentSources, src)
		}
	}
	return snap, nil
}
