// Package store persists leads, normalized jobs and scraping logs. SQLite
// is the default backend; Postgres is used when configured.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = eris.New("store: not found")

// LeadFilter selects leads for List. Zero fields do not filter.
type LeadFilter struct {
	IDs            []int64             `json:"ids,omitempty"`
	Source         model.Source        `json:"source,omitempty"`
	Status         model.LeadStatus    `json:"status,omitempty"`
	Rank           model.Rank          `json:"rank,omitempty"`
	ListingStatus  model.ListingStatus `json:"listing_status,omitempty"`
	Search         string              `json:"search,omitempty"` // substring of company name
	MissingPhone   bool                `json:"missing_phone,omitempty"`
	MissingEmail   bool                `json:"missing_email,omitempty"`
	MissingSummary bool                `json:"missing_summary,omitempty"`
	HasHomepage    bool                `json:"has_homepage,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
	Offset         int                 `json:"offset,omitempty"`
}

// LogFilter selects scraping logs for ListLogs.
type LogFilter struct {
	RunID  string       `json:"run_id,omitempty"`
	Source model.Source `json:"source,omitempty"`
	Since  time.Time    `json:"since,omitempty"`
	Limit  int          `json:"limit,omitempty"`
}

// BatchResult counts the outcome of SafeUpsertBatch.
type BatchResult struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
}

// LeadStore persists leads keyed by their unique URL.
type LeadStore interface {
	List(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	GetByID(ctx context.Context, id int64) (*model.Lead, error)
	GetByURL(ctx context.Context, url string) (*model.Lead, error)
	Exists(ctx context.Context, url string) (bool, error)
	// SafeUpsert inserts lead or merges it into the stored row with the
	// field protection rules, and reports whether a row was created.
	// lead.ID is set on return.
	SafeUpsert(ctx context.Context, lead *model.Lead) (bool, error)
	// SafeUpsertBatch applies SafeUpsert to every lead in one transaction.
	SafeUpsertBatch(ctx context.Context, leads []model.Lead) (BatchResult, error)
	Update(ctx context.Context, id int64, u model.LeadUpdate) error
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) (int, error)
}

// JobStore persists normalized jobs keyed by (source, source_job_id).
type JobStore interface {
	GetJob(ctx context.Context, id int64) (*model.NormalizedJob, error)
	GetJobBySource(ctx context.Context, source model.Source, sourceJobID string) (*model.NormalizedJob, error)
	InsertJob(ctx context.Context, job *model.NormalizedJob) error
	UpdateJob(ctx context.Context, job *model.NormalizedJob) error
	UpdateJobLastChecked(ctx context.Context, id int64, at time.Time) error
}

// LogStore appends and lists scraping logs.
type LogStore interface {
	InsertLog(ctx context.Context, entry *model.ScrapingLog) (int64, error)
	ListLogs(ctx context.Context, filter LogFilter) ([]model.ScrapingLog, error)
}

// Store is the single persistence handle shared by every component.
type Store interface {
	LeadStore
	JobStore
	LogStore

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string, pool *PoolConfig) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// dedupeByURL keeps the last lead for every URL, preserving first-seen
// order.
func dedupeByURL(leads []model.Lead) []model.Lead {
	idx := make(map[string]int, len(leads))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if i, ok := idx[l.URL]; ok {
			out[i] = l
			continue
		}
		idx[l.URL] = len(out)
		out = append(out, l)
	}
	return out
}
