// Package refresh re-checks stored leads against the job boards: per company
// it searches every board by name at once, each search on its own page, and
// folds the matches into one rank, job count and listing status.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/metrics"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/source"
	"github.com/sells-group/jobleads-cli/internal/store"
)

// DefaultCompanyDelay paces consecutive companies.
const DefaultCompanyDelay = 3 * time.Second

const listPageSize = 500

// Searcher runs a company-name search on one board. *source.Strategy
// implements it.
type Searcher interface {
	Source() model.Source
	SearchByName(ctx context.Context, page browser.Page, company string) ([]*model.RawListing, error)
}

// FromStrategies adapts strategies to searchers.
func FromStrategies(strategies []*source.Strategy) []Searcher {
	out := make([]Searcher, len(strategies))
	for i, s := range strategies {
		out[i] = s
	}
	return out
}

// Store is the lead persistence a refresh reads and writes.
type Store interface {
	List(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
	Update(ctx context.Context, id int64, u model.LeadUpdate) error
}

// Config wires an Engine.
type Config struct {
	Launcher     browser.Launcher
	Store        Store
	Searchers    []Searcher
	CompanyDelay time.Duration
	Metrics      *metrics.Metrics
	OnProgress   func(model.Progress)
	OnLog        func(string)
	// Sleep replaces the timer-based wait between companies.
	Sleep func(ctx context.Context, d time.Duration) error
}

// CompanyResult is the outcome for one lead.
type CompanyResult struct {
	LeadID         int64                   `json:"lead_id"`
	Company        string                  `json:"company"`
	Rank           model.Rank              `json:"rank,omitempty"`
	JobCount       int                     `json:"job_count"`
	ListingStatus  model.ListingStatus     `json:"listing_status"`
	LatestJobTitle string                  `json:"latest_job_title,omitempty"`
	Changes        model.ChangeReport      `json:"changes"`
	SiteErrors     map[model.Source]string `json:"site_errors,omitempty"`
	Error          string                  `json:"error,omitempty"`
}

// Summary is the outcome of a refresh run.
type Summary struct {
	Processed int             `json:"processed"`
	Changed   int             `json:"changed"`
	Errors    int             `json:"errors"`
	Results   []CompanyResult `json:"results"`
}

// Engine refreshes leads. One Engine may run several refreshes, one at a
// time.
type Engine struct {
	cfg Config
	log *zap.Logger
	now func() time.Time
}

// New returns an Engine.
func New(cfg Config) *Engine {
	if cfg.CompanyDelay <= 0 {
		cfg.CompanyDelay = DefaultCompanyDelay
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleep
	}
	return &Engine{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "refresh")),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Refresh re-checks the leads with the given ids, or every lead when ids is
// empty. Only setup failures are returned as errors; per-company failures
// are recorded in their CompanyResult.
func (e *Engine) Refresh(ctx context.Context, ids []int64) (*Summary, error) {
	if len(e.cfg.Searchers) == 0 {
		return nil, eris.New("refresh: no boards configured")
	}
	leads, err := e.loadLeads(ctx, ids)
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	if len(leads) == 0 {
		e.logf("refresh: no leads to check")
		return sum, nil
	}

	session, err := e.cfg.Launcher.Launch(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: launch browser")
	}
	defer func() {
		if err := session.Close(); err != nil {
			e.log.Warn("close browser session", zap.Error(err))
		}
	}()

	e.log.Info("refresh started", zap.Int("companies", len(leads)), zap.Int("boards", len(e.cfg.Searchers)))
	for i := range leads {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			if err := e.cfg.Sleep(ctx, e.cfg.CompanyDelay); err != nil {
				break
			}
		}
		lead := &leads[i]
		e.progress(model.Progress{
			Phase:        model.PhaseCompany,
			Company:      lead.CompanyName,
			CompanyIndex: i + 1,
			CompanyTotal: len(leads),
		})

		res := e.refreshCompany(ctx, session, lead)
		sum.Processed++
		switch {
		case res.Error != "":
			sum.Errors++
			e.cfg.Metrics.RefreshCompany("error")
		case res.Changes.Changed():
			sum.Changed++
			e.cfg.Metrics.RefreshCompany("changed")
		default:
			e.cfg.Metrics.RefreshCompany("unchanged")
		}
		sum.Results = append(sum.Results, res)
	}

	e.progress(model.Progress{Phase: model.PhaseComplete, CompanyIndex: sum.Processed, CompanyTotal: len(leads)})
	e.logf(fmt.Sprintf("refresh complete: %d checked, %d changed, %d errors", sum.Processed, sum.Changed, sum.Errors))
	e.log.Info("refresh finished", zap.Int("processed", sum.Processed), zap.Int("changed", sum.Changed), zap.Int("errors", sum.Errors))
	return sum, nil
}

func (e *Engine) loadLeads(ctx context.Context, ids []int64) ([]model.Lead, error) {
	if len(ids) > 0 {
		leads, err := e.cfg.Store.List(ctx, store.LeadFilter{IDs: ids, Limit: len(ids)})
		return leads, eris.Wrap(err, "refresh: load leads")
	}
	var all []model.Lead
	for offset := 0; ; offset += listPageSize {
		page, err := e.cfg.Store.List(ctx, store.LeadFilter{Limit: listPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "refresh: load leads")
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}

// siteResult is one board's matched listings for a company.
type siteResult struct {
	source  model.Source
	matched []*model.RawListing
	err     error
}

// refreshCompany searches every board concurrently, each on its own page,
// then aggregates and writes the result.
func (e *Engine) refreshCompany(ctx context.Context, session browser.Session, lead *model.Lead) CompanyResult {
	res := CompanyResult{LeadID: lead.ID, Company: lead.CompanyName, Changes: model.ChangeReport{}}
	if lead.CompanyName == "" {
		res.Error = "lead has no company name"
		return res
	}

	sites := make([]siteResult, len(e.cfg.Searchers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range e.cfg.Searchers {
		sites[i].source = s.Source()
		g.Go(func() error {
			matched, err := e.search(gctx, session, s, lead.CompanyName)
			sites[i].matched, sites[i].err = matched, err
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, sr := range sites {
		if sr.err == nil {
			continue
		}
		failed++
		if res.SiteErrors == nil {
			res.SiteErrors = make(map[model.Source]string)
		}
		res.SiteErrors[sr.source] = sr.err.Error()
		e.log.Warn("board search failed", zap.String("source", string(sr.source)), zap.String("company", lead.CompanyName), zap.Error(sr.err))
		e.logf(fmt.Sprintf("%s: %s search failed, counting as no results", lead.CompanyName, sr.source))
	}
	if failed > 0 && failed == len(sites) {
		// Still written: with no board answering, the company reads as
		// having no listings. SiteErrors keeps the failures visible.
		e.log.Warn("every board search failed", zap.String("company", lead.CompanyName), zap.Int64("lead_id", lead.ID))
	}

	agg := aggregate(sites)
	res.Rank, res.JobCount, res.ListingStatus, res.LatestJobTitle = agg.Rank, agg.JobCount, agg.ListingStatus, agg.LatestJobTitle
	res.Changes = Diff(lead, agg)

	if err := e.cfg.Store.Update(ctx, lead.ID, e.leadUpdate(lead, agg, res.Changes)); err != nil {
		res.Error = eris.Wrapf(err, "refresh: update lead %d", lead.ID).Error()
		return res
	}
	if c, ok := res.Changes["budget_rank"]; ok {
		e.cfg.Metrics.RankChange(c.Direction)
		e.logf(fmt.Sprintf("%s: rank %v -> %v (%s)", lead.CompanyName, c.Old, c.New, c.Direction))
	}
	e.logf(fmt.Sprintf("%s: %d listings, %d changes", lead.CompanyName, agg.JobCount, len(res.Changes)))
	return res
}

// search runs one board search on a page of its own and keeps the listings
// whose company matches.
func (e *Engine) search(ctx context.Context, session browser.Session, s Searcher, company string) ([]*model.RawListing, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "refresh: open page")
	}
	defer func() {
		if err := page.Close(); err != nil {
			e.log.Debug("close page", zap.Error(err))
		}
	}()

	found, err := s.SearchByName(ctx, page, company)
	if err != nil {
		return nil, err
	}
	var matched []*model.RawListing
	for _, l := range found {
		if l != nil && normalize.SameCompany(company, l.CompanyName) {
			matched = append(matched, l)
		}
	}
	return matched, nil
}

// Aggregated is the cross-board view of one company.
type Aggregated struct {
	Rank           model.Rank
	JobCount       int
	ListingStatus  model.ListingStatus
	LatestJobTitle string
}

// aggregate folds per-board matches: the best rank wins, the job count is
// the number of matched listings and the company is active when any
// listing matched. Failed boards count as no listings.
func aggregate(sites []siteResult) Aggregated {
	var agg Aggregated
	for _, sr := range sites {
		for _, l := range sr.matched {
			agg.JobCount++
			if l.BudgetRank.Ordinal() > agg.Rank.Ordinal() {
				agg.Rank = l.BudgetRank
			}
			if agg.LatestJobTitle == "" {
				agg.LatestJobTitle = l.JobTitle
			}
		}
	}
	agg.ListingStatus = model.ListingStatusInactive
	if agg.JobCount > 0 {
		agg.ListingStatus = model.ListingStatusActive
	}
	return agg
}

// Diff reports the fields where agg differs from the stored lead. A rank is
// only compared when one was observed.
func Diff(lead *model.Lead, agg Aggregated) model.ChangeReport {
	report := model.ChangeReport{}
	if agg.Rank.Valid() && agg.Rank != lead.BudgetRank {
		dir := model.DirectionDowngrade
		if agg.Rank.Ordinal() > lead.BudgetRank.Ordinal() {
			dir = model.DirectionUpgrade
		}
		report["budget_rank"] = model.FieldChange{Old: lead.BudgetRank, New: agg.Rank, Direction: dir}
	}
	if agg.JobCount != lead.JobCount {
		delta := agg.JobCount - lead.JobCount
		report["job_count"] = model.FieldChange{Old: lead.JobCount, New: agg.JobCount, Delta: &delta}
	}
	if agg.ListingStatus != lead.ListingStatus {
		report["listing_status"] = model.FieldChange{Old: lead.ListingStatus, New: agg.ListingStatus}
	}
	if agg.LatestJobTitle != "" && agg.LatestJobTitle != lead.LatestJobTitle {
		report["latest_job_title"] = model.FieldChange{Old: lead.LatestJobTitle, New: agg.LatestJobTitle}
	}
	return report
}

// leadUpdate shifts the rank history on a rank change and always records
// the check.
func (e *Engine) leadUpdate(lead *model.Lead, agg Aggregated, changes model.ChangeReport) model.LeadUpdate {
	now := e.now()
	jobCount := agg.JobCount
	status := agg.ListingStatus
	u := model.LeadUpdate{
		JobCount:             &jobCount,
		ListingStatus:        &status,
		LastUpdatedAt:        &now,
		IncrementUpdateCount: true,
	}
	if _, ok := changes["budget_rank"]; ok {
		newRank, lastRank := agg.Rank, lead.BudgetRank
		u.BudgetRank = &newRank
		u.LastRank = &lastRank
		u.RankDetectedAt = &now
	}
	if agg.LatestJobTitle != "" {
		title := agg.LatestJobTitle
		u.LatestJobTitle = &title
	}
	return u
}

func (e *Engine) progress(p model.Progress) {
	if e.cfg.OnProgress != nil {
		e.cfg.OnProgress(p)
	}
}

func (e *Engine) logf(msg string) {
	e.log.Debug(msg)
	if e.cfg.OnLog != nil {
		e.cfg.OnLog(msg)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
