package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/orchestrator"
	"github.com/sells-group/jobleads-cli/internal/refresh"
	"github.com/sells-group/jobleads-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API for scrapes and refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve", nil, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Prometheus.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		a := &api{
			ctx:      ctx,
			scraper:  env.Orchestrator,
			store:    env.Store,
			known:    env.Registry.Has,
			gatherer: env.Prometheus,
			origins:  cfg.Server.AllowedOrigins,
			log:      zap.L().With(zap.String("component", "api")),
			defaults: scrapeParams,
		}
		engine, err := env.newRefreshEngine(a.setRefreshProgress, nil)
		if err != nil {
			return err
		}
		a.refresher = engine

		if cfg.Monitoring.Enabled {
			go newChecker(env.Store).Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(a),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			env.Orchestrator.Stop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// scrapeControl is the orchestrator surface the API drives.
type scrapeControl interface {
	Start(ctx context.Context, p orchestrator.RunParams) (*orchestrator.Summary, error)
	Stop() bool
	IsRunning() bool
	LastProgress() model.Progress
}

type companyRefresher interface {
	Refresh(ctx context.Context, ids []int64) (*refresh.Summary, error)
}

type readStore interface {
	List(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error)
	ListLogs(ctx context.Context, filter store.LogFilter) ([]model.ScrapingLog, error)
}

// api serves the control endpoints. Scrapes and refreshes run in the
// background on ctx, one job at a time, since both drive the browser.
type api struct {
	ctx       context.Context
	scraper   scrapeControl
	refresher companyRefresher
	store     readStore
	known     func(model.Source) bool
	// defaults fills run parameters the request left empty.
	defaults func(sources []string, keyword, location string, pages int, contacts bool) orchestrator.RunParams
	gatherer prometheus.Gatherer
	origins  []string
	log      *zap.Logger

	mu              sync.Mutex
	active          string // "", "scrape" or "refresh"
	lastScrape      *orchestrator.RunResult
	lastRefresh     *refresh.Summary
	lastRefreshErr  string
	refreshProgress model.Progress
}

func buildRouter(a *api) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Route("/scrape", func(r chi.Router) {
		r.Post("/start", a.startScrape)
		r.Post("/stop", a.stopScrape)
		r.Get("/status", a.scrapeStatus)
	})
	r.Post("/refresh", a.startRefresh)
	r.Get("/refresh/status", a.refreshStatus)
	r.Get("/leads", a.listLeads)
	r.Get("/logs", a.listLogs)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// claim marks job as the active background job, or returns the job
// already holding the browser.
func (a *api) claim(job string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != "" {
		return a.active, false
	}
	if a.scraper.IsRunning() {
		return "scrape", false
	}
	a.active = job
	return job, true
}

func (a *api) release() {
	a.mu.Lock()
	a.active = ""
	a.mu.Unlock()
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	active := a.active
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active": active})
}

type scrapeRequest struct {
	Sources  []string `json:"sources"`
	Keyword  string   `json:"keyword"`
	Location string   `json:"location"`
	MaxPages int      `json:"max_pages"`
	Contacts bool     `json:"contacts"`
}

func (a *api) startScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params := a.defaults(req.Sources, req.Keyword, req.Location, req.MaxPages, req.Contacts)
	if len(params.Sources) == 0 {
		writeError(w, http.StatusBadRequest, "no sources selected")
		return
	}
	for _, src := range params.Sources {
		if !a.known(src) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source %q", src))
			return
		}
	}

	if job, ok := a.claim("scrape"); !ok {
		writeError(w, http.StatusConflict, job+" already running")
		return
	}

	go func() {
		defer a.release()
		sum, err := a.scraper.Start(a.ctx, params)
		res := orchestrator.Result(sum, err)
		if err != nil {
			a.log.Error("scrape failed", zap.Error(err))
		}
		a.mu.Lock()
		a.lastScrape = &res
		a.mu.Unlock()
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "sources": params.Sources})
}

func (a *api) stopScrape(w http.ResponseWriter, _ *http.Request) {
	if !a.scraper.Stop() {
		writeError(w, http.StatusConflict, "no scrape running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *api) scrapeStatus(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	last := a.lastScrape
	a.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":  a.scraper.IsRunning(),
		"progress": a.scraper.LastProgress(),
		"last":     last,
	})
}

type refreshRequest struct {
	IDs []int64 `json:"ids"`
	All bool    `json:"all"`
}

func (a *api) startRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 && !req.All {
		writeError(w, http.StatusBadRequest, "ids or all is required")
		return
	}
	ids := req.IDs
	if req.All {
		ids = nil
	}

	if job, ok := a.claim("refresh"); !ok {
		writeError(w, http.StatusConflict, job+" already running")
		return
	}

	go func() {
		defer a.release()
		sum, err := a.refresher.Refresh(a.ctx, ids)
		a.mu.Lock()
		defer a.mu.Unlock()
		a.lastRefresh, a.lastRefreshErr = sum, ""
		if err != nil {
			a.lastRefreshErr = err.Error()
			a.log.Error("refresh failed", zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "ids": req.IDs, "all": req.All})
}

func (a *api) setRefreshProgress(p model.Progress) {
	a.mu.Lock()
	a.refreshProgress = p
	a.mu.Unlock()
}

func (a *api) refreshStatus(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	body := map[string]any{
		"running":  a.active == "refresh",
		"progress": a.refreshProgress,
		"last":     a.lastRefresh,
	}
	if a.lastRefreshErr != "" {
		body["error"] = a.lastRefreshErr
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{
		Source:        model.Source(q.Get("source")),
		Status:        model.LeadStatus(q.Get("status")),
		Rank:          model.ParseRank(q.Get("rank")),
		ListingStatus: model.ListingStatus(q.Get("listing_status")),
		Search:        q.Get("search"),
		MissingPhone:  q.Get("missing_phone") == "true",
		Limit:         queryInt(q.Get("limit"), 50, 500),
		Offset:        queryInt(q.Get("offset"), 0, -1),
	}
	leads, err := a.store.List(r.Context(), filter)
	if err != nil {
		a.log.Error("list leads", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list leads failed")
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (a *api) listLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LogFilter{
		RunID:  q.Get("run_id"),
		Source: model.Source(q.Get("source")),
		Limit:  queryInt(q.Get("limit"), 50, 500),
	}
	if h := queryInt(q.Get("hours"), 0, -1); h > 0 {
		filter.Since = time.Now().Add(-time.Duration(h) * time.Hour)
	}
	logs, err := a.store.ListLogs(r.Context(), filter)
	if err != nil {
		a.log.Error("list logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list logs failed")
		return
	}
	if logs == nil {
		logs = []model.ScrapingLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// queryInt parses a non-negative query value, falling back to def. A
// positive max caps the result.
func queryInt(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
