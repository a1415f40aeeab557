// Package orchestrator runs a scrape: it owns the browser session, walks the
// selected sources one after another, applies the duplicate-based smart
// stop and writes one scraping log per source.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/contact"
	"github.com/sells-group/jobleads-cli/internal/metrics"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/reconcile"
	"github.com/sells-group/jobleads-cli/internal/source"
)

// ErrAlreadyRunning is returned by Start while another run is active.
var ErrAlreadyRunning = eris.New("orchestrator: scrape already running")

// DefaultSmartStopThreshold is the number of consecutive known listings
// after which a source is abandoned.
const DefaultSmartStopThreshold = 50

// Scraper is one source's listing stream. *source.Strategy implements it.
type Scraper interface {
	Source() model.Source
	Scrape(ctx context.Context, page browser.Page, params source.Params, logf source.LogFunc) iter.Seq2[*model.RawListing, error]
}

// StrategyFactory resolves source ids to scrapers, in order.
type StrategyFactory func(ids []model.Source) ([]Scraper, error)

// FromRegistry builds a StrategyFactory over reg.
func FromRegistry(reg *source.Registry, opts map[model.Source]source.Options) StrategyFactory {
	return func(ids []model.Source) ([]Scraper, error) {
		strategies, err := reg.Strategies(ids, opts)
		if err != nil {
			return nil, err
		}
		out := make([]Scraper, len(strategies))
		for i, s := range strategies {
			out[i] = s
		}
		return out, nil
	}
}

// Store is the read/log side of persistence the orchestrator needs.
type Store interface {
	Exists(ctx context.Context, url string) (bool, error)
	InsertLog(ctx context.Context, entry *model.ScrapingLog) (int64, error)
}

// Upserter writes a listing through the reconcile rules.
type Upserter interface {
	Upsert(ctx context.Context, raw *model.RawListing) (reconcile.Result, error)
}

// ContactFinder looks up phone and email on a company site.
type ContactFinder interface {
	Extract(ctx context.Context, page browser.Page, homepageURL string, logf func(string)) contact.Result
}

// Config wires an Orchestrator.
type Config struct {
	Launcher   browser.Launcher
	Store      Store
	Engine     Upserter
	Strategies StrategyFactory
	// Contacts enables the optional contact pass; nil disables it.
	Contacts           ContactFinder
	Metrics            *metrics.Metrics
	SmartStopThreshold int
	OnProgress         func(model.Progress)
	OnLog              func(string)
}

// RunParams selects what one run scrapes.
type RunParams struct {
	Sources []model.Source `json:"sources"`
	source.Params
	// Contacts runs the contact extractor for new leads that have a
	// homepage but no phone.
	Contacts bool `json:"contacts,omitempty"`
}

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source       model.Source    `json:"source"`
	Found        int             `json:"found"`
	New          int             `json:"new"`
	Updated      int             `json:"updated"`
	Duplicates   int             `json:"duplicates"`
	Errors       int             `json:"errors"`
	SmartStopped bool            `json:"smart_stopped"`
	Status       model.LogStatus `json:"status"`
	Error        string          `json:"error,omitempty"`
	Duration     time.Duration   `json:"duration"`
}

// Summary describes a finished run.
type Summary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stopped    bool           `json:"stopped"`
	Sources    []SourceResult `json:"sources"`
}

// Totals sums the per-source counters.
func (s *Summary) Totals() SourceResult {
	var t SourceResult
	for _, r := range s.Sources {
		t.Found += r.Found
		t.New += r.New
		t.Updated += r.Updated
		t.Duplicates += r.Duplicates
		t.Errors += r.Errors
	}
	return t
}

// RunResult is what callers outside the process see.
type RunResult struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// Result converts the return values of Start into a RunResult.
func Result(sum *Summary, err error) RunResult {
	if err != nil {
		return RunResult{Success: false, Error: err.Error(), Summary: sum}
	}
	return RunResult{Success: true, Summary: sum}
}

// Orchestrator runs at most one scrape at a time.
type Orchestrator struct {
	cfg     Config
	running atomic.Bool
	stop    atomic.Bool
	log     *zap.Logger
	now     func() time.Time

	mu   sync.Mutex
	last model.Progress
}

// New returns an Orchestrator. Launcher, Store, Engine and Strategies are
// required.
func New(cfg Config) *Orchestrator {
	if cfg.SmartStopThreshold <= 0 {
		cfg.SmartStopThreshold = DefaultSmartStopThreshold
	}
	return &Orchestrator{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "orchestrator")),
		now: time.Now,
	}
}

// IsRunning reports whether a run is active.
func (o *Orchestrator) IsRunning() bool { return o.running.Load() }

// Stop asks the active run to finish after the current item. It reports
// whether a run was active.
func (o *Orchestrator) Stop() bool {
	if !o.running.Load() {
		return false
	}
	o.stop.Store(true)
	o.logf("stop requested")
	return true
}

// LastProgress returns the most recent progress snapshot.
func (o *Orchestrator) LastProgress() model.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Start runs a scrape and blocks until it finishes. Setup failures (unknown
// source, browser launch) are returned as errors; source-level failures are
// recorded in the summary and the scraping log instead.
func (o *Orchestrator) Start(ctx context.Context, p RunParams) (*Summary, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)
	o.stop.Store(false)
	o.cfg.Metrics.RunActive(true)
	defer o.cfg.Metrics.RunActive(false)

	if len(p.Sources) == 0 {
		return nil, eris.New("orchestrator: no sources selected")
	}
	scrapers, err := o.cfg.Strategies(p.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: resolve sources")
	}

	session, err := o.cfg.Launcher.Launch(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: launch browser")
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.log.Warn("close browser session", zap.Error(err))
		}
	}()

	sum := &Summary{RunID: uuid.NewString(), StartedAt: o.now().UTC()}
	log := o.log.With(zap.String("run_id", sum.RunID))
	log.Info("scrape started", zap.Int("sources", len(scrapers)), zap.String("keyword", p.Keyword))

	for i, s := range scrapers {
		if o.stop.Load() || ctx.Err() != nil {
			break
		}
		sum.Sources = append(sum.Sources, o.runSource(ctx, session, s, p, sum.RunID, i, len(scrapers)))
	}
	sum.Stopped = o.stop.Load() || ctx.Err() != nil
	sum.FinishedAt = o.now().UTC()

	t := sum.Totals()
	o.progress(model.Progress{
		RunID:       sum.RunID,
		Phase:       model.PhaseComplete,
		SourceIndex: len(sum.Sources),
		SourceTotal: len(scrapers),
		Found:       t.Found,
		New:         t.New,
		Updated:     t.Updated,
		Duplicates:  t.Duplicates,
		Errors:      t.Errors,
	})
	o.logf(fmt.Sprintf("scrape complete: %d found, %d new, %d updated, %d errors", t.Found, t.New, t.Updated, t.Errors))
	log.Info("scrape finished",
		zap.Int("found", t.Found),
		zap.Int("new", t.New),
		zap.Int("errors", t.Errors),
		zap.Bool("stopped", sum.Stopped),
		zap.Duration("elapsed", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	return sum, nil
}

// runSource drives one scraper on its own page and always writes a log row.
func (o *Orchestrator) runSource(ctx context.Context, session browser.Session, s Scraper, p RunParams, runID string, idx, total int) SourceResult {
	src := s.Source()
	started := o.now().UTC()
	res := SourceResult{Source: src}
	log := o.log.With(zap.String("run_id", runID), zap.String("source", string(src)))

	snapshot := func(phase string, url string, consecutive int) model.Progress {
		return model.Progress{
			RunID:                 runID,
			Phase:                 phase,
			Source:                src,
			SourceIndex:           idx + 1,
			SourceTotal:           total,
			Found:                 res.Found,
			New:                   res.New,
			Updated:               res.Updated,
			Duplicates:            res.Duplicates,
			ConsecutiveDuplicates: consecutive,
			Errors:                res.Errors,
			CurrentURL:            url,
		}
	}

	var srcErr error
	o.progress(snapshot(model.PhaseNavigating, "", 0))
	o.logf(fmt.Sprintf("%s: starting (%d/%d)", src, idx+1, total))

	// Each source browses in a context of its own so one board's cookies
	// never reach the next.
	page, err := browser.NewIsolatedPage(ctx, session)
	if err != nil {
		srcErr = eris.Wrap(err, "orchestrator: open page")
	} else {
		var contactPage browser.Page
		srcErr = o.consume(ctx, s, page, &contactPage, session, p, &res, snapshot)
		if err := page.Close(); err != nil {
			log.Debug("close page", zap.Error(err))
		}
		if contactPage != nil {
			if err := contactPage.Close(); err != nil {
				log.Debug("close contact page", zap.Error(err))
			}
		}
	}

	res.Duration = o.now().UTC().Sub(started)
	res.Status = sourceStatus(res.Found, res.Errors, srcErr)
	if srcErr != nil {
		res.Error = srcErr.Error()
		log.Error("source aborted", zap.Error(srcErr))
		o.logf(fmt.Sprintf("%s: aborted: %v", src, srcErr))
	}

	entry := &model.ScrapingLog{
		RunID:        runID,
		Source:       src,
		StartedAt:    started,
		FinishedAt:   started.Add(res.Duration),
		DurationMs:   res.Duration.Milliseconds(),
		JobsFound:    res.Found,
		NewJobs:      res.New,
		UpdatedJobs:  res.Updated,
		Duplicates:   res.Duplicates,
		Errors:       res.Errors,
		SmartStopped: res.SmartStopped,
		Status:       res.Status,
		ErrorMessage: res.Error,
	}
	if _, err := o.cfg.Store.InsertLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("write scraping log", zap.Error(err))
	}
	o.cfg.Metrics.SourceDone(src, res.Status, res.Duration)

	o.progress(snapshot(model.PhaseSourceDone, "", 0))
	o.logf(fmt.Sprintf("%s: done: %d found, %d new, %d duplicates, %d errors (%s)",
		src, res.Found, res.New, res.Duplicates, res.Errors, res.Status))
	return res
}

// consume pulls listings until the stream ends, the smart stop fires or a
// stop is requested. It returns the error that aborted the source, if any.
func (o *Orchestrator) consume(
	ctx context.Context,
	s Scraper,
	page browser.Page,
	contactPage *browser.Page,
	session browser.Session,
	p RunParams,
	res *SourceResult,
	snapshot func(string, string, int) model.Progress,
) error {
	src := s.Source()
	consecutive := 0

	for raw, err := range s.Scrape(ctx, page, p.Params, o.logf) {
		if o.stop.Load() {
			o.logf(fmt.Sprintf("%s: stopped", src))
			return nil
		}
		if err != nil {
			var itemErr *source.ItemError
			if !errors.As(err, &itemErr) {
				return err
			}
			res.Found++
			res.Errors++
			o.cfg.Metrics.Listing(src, metrics.OutcomeError)
			o.log.Warn("listing failed", zap.String("source", string(src)), zap.Error(err))
			o.progress(snapshot(model.PhaseItem, itemErr.URL, consecutive))
			continue
		}

		res.Found++
		o.cfg.Metrics.Listing(src, metrics.OutcomeFound)

		exists, err := o.cfg.Store.Exists(ctx, raw.DetailURL)
		if err != nil {
			res.Errors++
			o.cfg.Metrics.Listing(src, metrics.OutcomeError)
			o.log.Warn("dedup lookup failed", zap.String("url", raw.DetailURL), zap.Error(err))
			continue
		}
		if exists {
			res.Duplicates++
			consecutive++
			o.cfg.Metrics.Listing(src, metrics.OutcomeDuplicate)
		} else {
			consecutive = 0
			if p.Contacts && o.cfg.Contacts != nil && raw.HomepageURL != "" && raw.Phone == "" {
				o.contactPass(ctx, session, contactPage, raw)
			}
		}

		up, err := o.cfg.Engine.Upsert(ctx, raw)
		switch {
		case err != nil:
			res.Errors++
			o.cfg.Metrics.Listing(src, metrics.OutcomeError)
			o.log.Warn("upsert failed", zap.String("url", raw.DetailURL), zap.Error(err))
		case up.IsNew:
			res.New++
			o.cfg.Metrics.Listing(src, metrics.OutcomeNew)
		default:
			res.Updated++
			o.cfg.Metrics.Listing(src, metrics.OutcomeUpdated)
		}
		o.progress(snapshot(model.PhaseItem, raw.DetailURL, consecutive))

		if consecutive >= o.cfg.SmartStopThreshold {
			res.SmartStopped = true
			o.cfg.Metrics.SmartStop(src)
			o.progress(snapshot(model.PhaseSmartStop, raw.DetailURL, consecutive))
			o.logf(fmt.Sprintf("%s: %d known listings in a row, smart stop", src, consecutive))
			return nil
		}
	}
	return nil
}

// contactPass fills empty contact fields of raw from its company site, on a
// second page of the same session opened on first use.
func (o *Orchestrator) contactPass(ctx context.Context, session browser.Session, page *browser.Page, raw *model.RawListing) {
	if *page == nil {
		p, err := session.NewPage(ctx)
		if err != nil {
			o.log.Warn("open contact page", zap.Error(err))
			return
		}
		*page = p
	}
	found := o.cfg.Contacts.Extract(ctx, *page, raw.HomepageURL, o.logf)
	if raw.Phone == "" {
		raw.Phone = found.Phone
	}
	if raw.Email == "" {
		raw.Email = found.Email
	}
	if raw.ContactFormURL == "" {
		raw.ContactFormURL = found.ContactPageURL
	}
	raw.ScrapeStatus = model.ScrapeStatusStep2
	o.cfg.Metrics.ContactVisited(found.Visited, found.Phone != "" || found.Email != "")
}

func sourceStatus(found, errs int, srcErr error) model.LogStatus {
	if srcErr == nil {
		return model.StatusFor(found, errs)
	}
	if found == 0 {
		return model.LogStatusError
	}
	return model.StatusFor(found, errs+1)
}

func (o *Orchestrator) progress(p model.Progress) {
	o.mu.Lock()
	o.last = p
	o.mu.Unlock()
	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(p)
	}
}

func (o *Orchestrator) logf(msg string) {
	o.log.Debug(msg)
	if o.cfg.OnLog != nil {
		o.cfg.OnLog(msg)
	}
}
