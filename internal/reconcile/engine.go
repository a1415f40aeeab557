// Package reconcile merges freshly scraped listings into the lead and job
// tables without clobbering what operators or enrichment already recorded.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/store"
)

// Store is the persistence the engine writes through.
type Store interface {
	store.LeadStore
	store.JobStore
}

// JobOutcome says what happened to the normalized job of an upsert.
type JobOutcome string

const (
	JobInserted  JobOutcome = "inserted"
	JobUpdated   JobOutcome = "updated"
	JobUnchanged JobOutcome = "unchanged"
)

// Result describes one upserted listing.
type Result struct {
	LeadID int64
	IsNew  bool
	Job    JobOutcome
}

// Engine is the single write path for scraped listings.
type Engine struct {
	store Store
	now   func() time.Time
	log   *zap.Logger
}

// New returns an Engine writing to st.
func New(st Store) *Engine {
	return &Engine{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
		log:   zap.L().With(zap.String("component", "reconcile")),
	}
}

// Upsert merges raw into its lead row and syncs the normalized job. The lead
// is written first; a failing job sync is returned with the lead result
// intact.
func (e *Engine) Upsert(ctx context.Context, raw *model.RawListing) (Result, error) {
	if raw == nil || raw.DetailURL == "" {
		return Result{}, eris.New("reconcile: listing without detail url")
	}
	lead := model.LeadFromRaw(*raw)
	isNew, err := e.store.SafeUpsert(ctx, &lead)
	if err != nil {
		return Result{}, eris.Wrapf(err, "reconcile: upsert lead %s", raw.DetailURL)
	}
	res := Result{LeadID: lead.ID, IsNew: isNew}

	res.Job, err = e.SyncJob(ctx, raw)
	if err != nil {
		return res, err
	}
	e.log.Debug("listing reconciled",
		zap.String("source", string(raw.Source)),
		zap.String("url", raw.DetailURL),
		zap.Bool("new", isNew),
		zap.String("job", string(res.Job)),
	)
	return res, nil
}

// UpsertBatch merges every listing in one lead transaction, then syncs their
// jobs. Listings sharing a URL collapse to the last one.
func (e *Engine) UpsertBatch(ctx context.Context, raws []*model.RawListing) (store.BatchResult, error) {
	leads := make([]model.Lead, 0, len(raws))
	for _, raw := range raws {
		if raw == nil || raw.DetailURL == "" {
			return store.BatchResult{}, eris.New("reconcile: batch listing without detail url")
		}
		leads = append(leads, model.LeadFromRaw(*raw))
	}
	res, err := e.store.SafeUpsertBatch(ctx, leads)
	if err != nil {
		return store.BatchResult{}, eris.Wrap(err, "reconcile: batch upsert")
	}

	var jobErrs []error
	for _, raw := range raws {
		if _, err := e.SyncJob(ctx, raw); err != nil {
			jobErrs = append(jobErrs, err)
		}
	}
	if len(jobErrs) > 0 {
		return res, eris.Wrapf(errors.Join(jobErrs...), "reconcile: %d of %d jobs failed", len(jobErrs), len(raws))
	}
	e.log.Info("batch reconciled", zap.Int("new", res.New), zap.Int("updated", res.Updated))
	return res, nil
}

// SyncJob writes the normalized job for raw. A job whose material fields are
// unchanged only gets its last_checked_at advanced.
func (e *Engine) SyncJob(ctx context.Context, raw *model.RawListing) (JobOutcome, error) {
	now := e.now()
	fresh := TranslateJob(raw, now)

	stored, err := e.store.GetJobBySource(ctx, fresh.Source, fresh.SourceJobID)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.store.InsertJob(ctx, fresh); err != nil {
			return "", eris.Wrapf(err, "reconcile: insert job %s", fresh.SourceJobID)
		}
		return JobInserted, nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "reconcile: load job %s", fresh.SourceJobID)
	}

	if !jobChanged(stored, fresh) {
		if err := e.store.UpdateJobLastChecked(ctx, stored.ID, now); err != nil {
			return "", eris.Wrapf(err, "reconcile: touch job %d", stored.ID)
		}
		return JobUnchanged, nil
	}

	fresh.ID = stored.ID
	fresh.FirstSeenAt = stored.FirstSeenAt
	fresh.UpdateCount = stored.UpdateCount
	if err := e.store.UpdateJob(ctx, fresh); err != nil {
		return "", eris.Wrapf(err, "reconcile: update job %d", stored.ID)
	}
	return JobUpdated, nil
}
