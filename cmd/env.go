package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/config"
	"github.com/sells-group/jobleads-cli/internal/contact"
	"github.com/sells-group/jobleads-cli/internal/enrich"
	"github.com/sells-group/jobleads-cli/internal/metrics"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/orchestrator"
	"github.com/sells-group/jobleads-cli/internal/reconcile"
	"github.com/sells-group/jobleads-cli/internal/refresh"
	"github.com/sells-group/jobleads-cli/internal/resilience"
	"github.com/sells-group/jobleads-cli/internal/source"
	"github.com/sells-group/jobleads-cli/internal/source/sites"
	"github.com/sells-group/jobleads-cli/internal/store"
	anthropicpkg "github.com/sells-group/jobleads-cli/pkg/anthropic"
	"github.com/sells-group/jobleads-cli/pkg/google"
)

// appEnv holds the store, registry and engines shared by the scrape,
// refresh, enrich and serve commands.
type appEnv struct {
	Store        store.Store
	Registry     *source.Registry
	Prometheus   *prometheus.Registry
	Metrics      *metrics.Metrics
	Launcher     browser.Launcher
	Reconcile    *reconcile.Engine
	Orchestrator *orchestrator.Orchestrator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv validates config for mode and builds the shared environment.
// Progress and log callbacks of the orchestrator are left to the caller.
// Callers should defer env.Close().
func initEnv(ctx context.Context, mode string, onProgress func(model.Progress), onLog func(string)) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	env := &appEnv{
		Store:      st,
		Registry:   sites.Default(),
		Prometheus: reg,
		Metrics:    metrics.New(reg),
		Launcher:   browser.NewChromeLauncher(browserOptions(cfg.Browser)),
		Reconcile:  reconcile.New(st),
	}

	env.Orchestrator = orchestrator.New(orchestrator.Config{
		Launcher:           env.Launcher,
		Store:              st,
		Engine:             env.Reconcile,
		Strategies:         orchestrator.FromRegistry(env.Registry, sourceOptions(cfg.Scrape)),
		Contacts:           newContactExtractor(cfg.Contact),
		Metrics:            env.Metrics,
		SmartStopThreshold: cfg.Scrape.SmartStopThreshold,
		OnProgress:         onProgress,
		OnLog:              onLog,
	})
	return env, nil
}

// newRefreshEngine builds a refresh engine over the configured boards.
func (e *appEnv) newRefreshEngine(onProgress func(model.Progress), onLog func(string)) (*refresh.Engine, error) {
	ids := config.Sources(cfg.Refresh.Sources)
	if len(ids) == 0 {
		ids = sites.RefreshSources
	}
	strategies, err := e.Registry.Strategies(ids, sourceOptions(cfg.Scrape))
	if err != nil {
		return nil, eris.Wrap(err, "refresh boards")
	}
	return refresh.New(refresh.Config{
		Launcher:     e.Launcher,
		Store:        e.Store,
		Searchers:    refresh.FromStrategies(strategies),
		CompanyDelay: cfg.Refresh.CompanyDelay(),
		Metrics:      e.Metrics,
		OnProgress:   onProgress,
		OnLog:        onLog,
	}), nil
}

// newEnrichService wires the outside services that have keys configured.
// launcher serves the contact pass.
func (e *appEnv) newEnrichService(launcher browser.Launcher, onLog func(string)) *enrich.Service {
	ec := enrich.Config{
		Store:    e.Store,
		Contacts: newContactExtractor(cfg.Contact),
		Launcher: launcher,
		Breakers: resilience.NewBreakers(resilience.FromCircuitConfig(cfg.Enrich.FailureThreshold, cfg.Enrich.ResetTimeoutSecs)),
		Metrics:  e.Metrics,
		OnLog:    onLog,
	}
	if cfg.Google.Key != "" {
		client := google.NewClient(cfg.Google.Key,
			google.WithBaseURL(cfg.Google.BaseURL),
			google.WithRateLimit(cfg.Google.RateLimit),
		)
		ec.Phones = enrich.NewPlacesPhoneLookup(client)
	}
	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, option.WithMaxRetries(2))
		ec.Summaries = enrich.NewClaudeSummarizer(client, cfg.Anthropic.SummaryModel, cfg.Anthropic.MaxTokens)
	}
	return enrich.New(ec)
}

func browserOptions(b config.BrowserConfig) browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = b.Headless
	opts.ExecPath = b.ExecPath
	opts.UserDataDir = b.UserDataDir
	opts.NoSandbox = b.NoSandbox
	opts.Stealth = b.Stealth
	if b.UserAgent != "" {
		opts.UserAgent = b.UserAgent
	}
	if b.NavTimeoutSecs > 0 {
		opts.NavTimeout = b.NavTimeout()
	}
	if b.SelectorTimeoutSec > 0 {
		opts.SelectorTimeout = time.Duration(b.SelectorTimeoutSec) * time.Second
	}
	if b.IdleWaitMs > 0 {
		opts.IdleWait = time.Duration(b.IdleWaitMs) * time.Millisecond
	}
	return opts
}

// sourceOptions maps per-board config overrides onto strategy options.
// Boards without an override still get the shared rate and retry settings.
func sourceOptions(s config.ScrapeConfig) map[model.Source]source.Options {
	base := source.Options{
		NavigationsPerSecond: s.NavigationsPerSecond,
		NavRetry:             resilience.FromNavigationConfig(s.NavMaxAttempts, s.NavBackoffMs),
	}
	out := make(map[model.Source]source.Options)
	for _, id := range sites.Default().IDs() {
		out[id] = base
	}
	for id, sc := range s.Sources {
		o := base
		o.ItemDelay = time.Duration(sc.ItemDelayMs) * time.Millisecond
		o.PageDelay = time.Duration(sc.PageDelayMs) * time.Millisecond
		o.PageCap = sc.PageCap
		out[model.Source(id)] = o
	}
	return out
}

func newContactExtractor(c config.ContactConfig) *contact.Extractor {
	return contact.New(contact.Config{
		Paths:           c.Paths,
		MaxPages:        c.MaxPages,
		ExcludePatterns: c.ExcludePatterns,
	})
}

// stderrLog prints operator-facing messages while a command runs.
func stderrLog(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}
