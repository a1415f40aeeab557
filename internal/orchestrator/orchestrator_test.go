package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/browser/browsertest"
	"github.com/sells-group/jobleads-cli/internal/contact"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/reconcile"
	"github.com/sells-group/jobleads-cli/internal/source"
)

type item struct {
	raw *model.RawListing
	err error
}

type fakeScraper struct {
	src    model.Source
	items  []item
	gate   chan struct{}
	pulled int
}

func (f *fakeScraper) Source() model.Source { return f.src }

func (f *fakeScraper) Scrape(_ context.Context, _ browser.Page, _ source.Params, _ source.LogFunc) iter.Seq2[*model.RawListing, error] {
	return func(yield func(*model.RawListing, error) bool) {
		if f.gate != nil {
			<-f.gate
		}
		for _, it := range f.items {
			f.pulled++
			if !yield(it.raw, it.err) {
				return
			}
		}
	}
}

// memStore is an in-memory Store and Upserter.
type memStore struct {
	mu       sync.Mutex
	urls     map[string]bool
	logs     []model.ScrapingLog
	upserted []model.RawListing
}

func newMemStore(known ...string) *memStore {
	m := &memStore{urls: make(map[string]bool)}
	for _, u := range known {
		m.urls[u] = true
	}
	return m
}

func (m *memStore) Exists(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.urls[url], nil
}

func (m *memStore) InsertLog(_ context.Context, e *model.ScrapingLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *e)
	return int64(len(m.logs)), nil
}

func (m *memStore) Upsert(_ context.Context, raw *model.RawListing) (reconcile.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	isNew := !m.urls[raw.DetailURL]
	m.urls[raw.DetailURL] = true
	m.upserted = append(m.upserted, *raw)
	return reconcile.Result{IsNew: isNew, Job: reconcile.JobInserted}, nil
}

func listing(src model.Source, n int) item {
	return item{raw: &model.RawListing{
		Source:      src,
		DetailURL:   fmt.Sprintf("https://%s.example/job/%d", src, n),
		CompanyName: fmt.Sprintf("会社%d", n),
	}}
}

func listings(src model.Source, from, to int) []item {
	var out []item
	for i := from; i < to; i++ {
		out = append(out, listing(src, i))
	}
	return out
}

func urls(items []item) []string {
	var out []string
	for _, it := range items {
		if it.raw != nil {
			out = append(out, it.raw.DetailURL)
		}
	}
	return out
}

func newTestOrchestrator(st *memStore, session *browsertest.Session, scrapers ...Scraper) *Orchestrator {
	return New(Config{
		Launcher: session.Launcher(),
		Store:    st,
		Engine:   st,
		Strategies: func(ids []model.Source) ([]Scraper, error) {
			return scrapers, nil
		},
	})
}

func params(sources ...model.Source) RunParams {
	return RunParams{Sources: sources, Params: source.Params{Keyword: "営業"}}
}

func TestStart_SmartStopAtThreshold(t *testing.T) {
	known := listings(model.SourceDoda, 0, 60)
	fresh := listings(model.SourceDoda, 100, 105)
	sc := &fakeScraper{src: model.SourceDoda, items: append(append([]item{}, known...), fresh...)}
	st := newMemStore(urls(known)...)
	session := browsertest.NewSession()

	sum, err := newTestOrchestrator(st, session, sc).Start(context.Background(), params(model.SourceDoda))
	require.NoError(t, err)
	require.Len(t, sum.Sources, 1)

	res := sum.Sources[0]
	assert.True(t, res.SmartStopped)
	assert.Equal(t, 50, res.Found)
	assert.Equal(t, 50, res.Duplicates)
	assert.Equal(t, 0, res.New)
	assert.Equal(t, 50, sc.pulled, "the stream is not pulled past the stop")
	assert.Len(t, st.upserted, 50, "duplicates are still written through")

	require.Len(t, st.logs, 1)
	assert.True(t, st.logs[0].SmartStopped)
	assert.Equal(t, model.LogStatusSuccess, st.logs[0].Status)
	assert.Equal(t, sum.RunID, st.logs[0].RunID)
}

func TestStart_NewListingResetsConsecutive(t *testing.T) {
	first := listings(model.SourceDoda, 0, 30)
	second := listings(model.SourceDoda, 30, 60)
	items := append(append(append([]item{}, first...), listing(model.SourceDoda, 999)), second...)
	sc := &fakeScraper{src: model.SourceDoda, items: items}
	st := newMemStore(append(urls(first), urls(second)...)...)

	sum, err := newTestOrchestrator(st, browsertest.NewSession(), sc).Start(context.Background(), params(model.SourceDoda))
	require.NoError(t, err)

	res := sum.Sources[0]
	assert.False(t, res.SmartStopped)
	assert.Equal(t, 61, res.Found)
	assert.Equal(t, 60, res.Duplicates)
	assert.Equal(t, 1, res.New)
	assert.Equal(t, 60, res.Updated)
}

func TestStart_ItemErrorsMakePartial(t *testing.T) {
	items := listings(model.SourceMynavi, 0, 3)
	for i := 0; i < 4; i++ {
		items = append(items, item{err: &source.ItemError{URL: fmt.Sprintf("https://x/%d", i), Err: errors.New("timeout")}})
	}
	sc := &fakeScraper{src: model.SourceMynavi, items: items}
	st := newMemStore()

	sum, err := newTestOrchestrator(st, browsertest.NewSession(), sc).Start(context.Background(), params(model.SourceMynavi))
	require.NoError(t, err)

	res := sum.Sources[0]
	assert.Equal(t, 7, res.Found)
	assert.Equal(t, 4, res.Errors)
	assert.Equal(t, 3, res.New)
	assert.Equal(t, model.LogStatusPartial, res.Status)
	assert.Equal(t, 7, sc.pulled, "item errors never end the stream")
}

func TestStart_SourceErrorAbortsOnlyThatSource(t *testing.T) {
	broken := &fakeScraper{src: model.SourceDoda, items: []item{{err: errors.New("search page blocked")}}}
	ok := &fakeScraper{src: model.SourceMynavi, items: listings(model.SourceMynavi, 0, 2)}
	st := newMemStore()
	session := browsertest.NewSession()

	sum, err := newTestOrchestrator(st, session, broken, ok).Start(context.Background(), params(model.SourceDoda, model.SourceMynavi))
	require.NoError(t, err)
	require.Len(t, sum.Sources, 2)

	assert.Equal(t, model.LogStatusError, sum.Sources[0].Status)
	assert.Contains(t, sum.Sources[0].Error, "search page blocked")
	assert.Equal(t, model.LogStatusSuccess, sum.Sources[1].Status)
	assert.Equal(t, 2, sum.Sources[1].New)

	require.Len(t, st.logs, 2, "every source writes a log row")
	assert.Equal(t, model.LogStatusError, st.logs[0].Status)
	assert.Equal(t, "search page blocked", st.logs[0].ErrorMessage)

	pages := session.Pages()
	require.Len(t, pages, 2, "one page per source")
	for _, p := range pages {
		assert.True(t, p.Closed())
	}
	assert.True(t, session.Closed())
}

func TestStart_EachSourceGetsIsolatedContext(t *testing.T) {
	first := &fakeScraper{src: model.SourceMynavi, items: listings(model.SourceMynavi, 0, 2)}
	second := &fakeScraper{src: model.SourceDoda, items: listings(model.SourceDoda, 0, 2)}
	session := browsertest.NewSession()

	_, err := newTestOrchestrator(newMemStore(), session, first, second).Start(context.Background(), params(model.SourceMynavi, model.SourceDoda))
	require.NoError(t, err)

	pages := session.Pages()
	require.Len(t, pages, 2)
	for _, p := range pages {
		assert.True(t, p.Isolated())
		assert.True(t, p.Closed())
	}
	assert.Equal(t, 1, session.MaxOpenIsolated(), "a source's context is closed before the next opens")
}

func TestStart_PageOpenFailureIsSourceError(t *testing.T) {
	session := browsertest.NewSession()
	session.NewPageErr = errors.New("tab crashed")
	st := newMemStore()
	sc := &fakeScraper{src: model.SourceDoda, items: listings(model.SourceDoda, 0, 1)}

	sum, err := newTestOrchestrator(st, session, sc).Start(context.Background(), params(model.SourceDoda))
	require.NoError(t, err)
	assert.Equal(t, model.LogStatusError, sum.Sources[0].Status)
	assert.Zero(t, sc.pulled)
	require.Len(t, st.logs, 1)
}

func TestStart_LaunchFailureAbortsRun(t *testing.T) {
	st := newMemStore()
	o := New(Config{
		Launcher: browser.LauncherFunc(func(context.Context) (browser.Session, error) {
			return nil, errors.New("chrome not found")
		}),
		Store:  st,
		Engine: st,
		Strategies: func([]model.Source) ([]Scraper, error) {
			return []Scraper{&fakeScraper{src: model.SourceDoda}}, nil
		},
	})

	sum, err := o.Start(context.Background(), params(model.SourceDoda))
	require.Error(t, err)
	assert.Nil(t, sum)
	assert.Contains(t, err.Error(), "chrome not found")
	assert.Empty(t, st.logs)
	assert.False(t, o.IsRunning())

	r := Result(sum, err)
	assert.False(t, r.Success)
	assert.Contains(t, r.Error, "launch browser")
}

func TestStart_UnknownSource(t *testing.T) {
	st := newMemStore()
	o := New(Config{
		Launcher:   browsertest.NewSession().Launcher(),
		Store:      st,
		Engine:     st,
		Strategies: func(ids []model.Source) ([]Scraper, error) { return nil, errors.New("unknown source") },
	})
	_, err := o.Start(context.Background(), params("indeed"))
	require.Error(t, err)

	_, err = o.Start(context.Background(), RunParams{})
	require.Error(t, err)
}

func TestStart_AlreadyRunning(t *testing.T) {
	gate := make(chan struct{})
	sc := &fakeScraper{src: model.SourceDoda, items: listings(model.SourceDoda, 0, 1), gate: gate}
	st := newMemStore()
	o := newTestOrchestrator(st, browsertest.NewSession(), sc)

	done := make(chan error, 1)
	go func() {
		_, err := o.Start(context.Background(), params(model.SourceDoda))
		done <- err
	}()
	require.Eventually(t, o.IsRunning, time.Second, 5*time.Millisecond)

	_, err := o.Start(context.Background(), params(model.SourceDoda))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, o.IsRunning())
	assert.Len(t, st.logs, 1, "the rejected start has no side effects")
}

func TestStop_EndsRunAfterCurrentItem(t *testing.T) {
	first := &fakeScraper{src: model.SourceDoda, items: listings(model.SourceDoda, 0, 10)}
	second := &fakeScraper{src: model.SourceMynavi, items: listings(model.SourceMynavi, 0, 10)}
	st := newMemStore()

	var o *Orchestrator
	o = New(Config{
		Launcher:   browsertest.NewSession().Launcher(),
		Store:      st,
		Engine:     st,
		Strategies: func([]model.Source) ([]Scraper, error) { return []Scraper{first, second}, nil },
		OnProgress: func(p model.Progress) {
			if p.Phase == model.PhaseItem && p.Found == 2 {
				o.Stop()
			}
		},
	})

	sum, err := o.Start(context.Background(), params(model.SourceDoda, model.SourceMynavi))
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	require.Len(t, sum.Sources, 1, "no source starts after a stop")
	assert.Equal(t, 2, sum.Sources[0].Found)
	assert.Zero(t, second.pulled)
	assert.Len(t, st.logs, 1)
	assert.False(t, o.Stop(), "nothing to stop once finished")
}

func TestStart_ProgressAndLogCallbacks(t *testing.T) {
	sc := &fakeScraper{src: model.SourceDoda, items: listings(model.SourceDoda, 0, 2)}
	st := newMemStore()

	var phases []string
	var lines []string
	o := New(Config{
		Launcher:   browsertest.NewSession().Launcher(),
		Store:      st,
		Engine:     st,
		Strategies: func([]model.Source) ([]Scraper, error) { return []Scraper{sc}, nil },
		OnProgress: func(p model.Progress) { phases = append(phases, p.Phase) },
		OnLog:      func(s string) { lines = append(lines, s) },
	})

	_, err := o.Start(context.Background(), params(model.SourceDoda))
	require.NoError(t, err)
	assert.Equal(t, []string{
		model.PhaseNavigating, model.PhaseItem, model.PhaseItem, model.PhaseSourceDone, model.PhaseComplete,
	}, phases)
	assert.NotEmpty(t, lines)
	assert.Equal(t, model.PhaseComplete, o.LastProgress().Phase)
	assert.Equal(t, 2, o.LastProgress().New)
}

type fakeContacts struct {
	calls []string
	res   contact.Result
}

func (f *fakeContacts) Extract(_ context.Context, _ browser.Page, homepage string, _ func(string)) contact.Result {
	f.calls = append(f.calls, homepage)
	return f.res
}

func TestStart_ContactPass(t *testing.T) {
	withHome := listing(model.SourceMynavi, 1)
	withHome.raw.HomepageURL = "https://corp.example.jp/"
	withPhone := listing(model.SourceMynavi, 2)
	withPhone.raw.HomepageURL = "https://other.example.jp/"
	withPhone.raw.Phone = "03-0000-0000"
	known := listing(model.SourceMynavi, 3)
	known.raw.HomepageURL = "https://known.example.jp/"

	sc := &fakeScraper{src: model.SourceMynavi, items: []item{withHome, withPhone, known}}
	st := newMemStore(known.raw.DetailURL)
	session := browsertest.NewSession()
	finder := &fakeContacts{res: contact.Result{Phone: "06-1234-5678", Email: "info@corp.example.jp", ContactPageURL: "https://corp.example.jp/contact/", Visited: 2}}

	o := New(Config{
		Launcher:   session.Launcher(),
		Store:      st,
		Engine:     st,
		Strategies: func([]model.Source) ([]Scraper, error) { return []Scraper{sc}, nil },
		Contacts:   finder,
	})
	p := params(model.SourceMynavi)
	p.Contacts = true
	_, err := o.Start(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://corp.example.jp/"}, finder.calls)
	require.Len(t, st.upserted, 3)
	got := st.upserted[0]
	assert.Equal(t, "06-1234-5678", got.Phone)
	assert.Equal(t, "info@corp.example.jp", got.Email)
	assert.Equal(t, "https://corp.example.jp/contact/", got.ContactFormURL)
	assert.Equal(t, model.ScrapeStatusStep2, got.ScrapeStatus)
	assert.Equal(t, "03-0000-0000", st.upserted[1].Phone)

	pages := session.Pages()
	require.Len(t, pages, 2, "the contact pass uses a second page")
	assert.True(t, pages[0].Isolated())
	assert.False(t, pages[1].Isolated(), "the contact page shares the session's default context")
	for _, pg := range pages {
		assert.True(t, pg.Closed())
	}
}

func TestStart_ContactPassDisabled(t *testing.T) {
	it := listing(model.SourceMynavi, 1)
	it.raw.HomepageURL = "https://corp.example.jp/"
	sc := &fakeScraper{src: model.SourceMynavi, items: []item{it}}
	st := newMemStore()
	finder := &fakeContacts{}

	o := New(Config{
		Launcher:   browsertest.NewSession().Launcher(),
		Store:      st,
		Engine:     st,
		Strategies: func([]model.Source) ([]Scraper, error) { return []Scraper{sc}, nil },
		Contacts:   finder,
	})
	_, err := o.Start(context.Background(), params(model.SourceMynavi))
	require.NoError(t, err)
	assert.Empty(t, finder.calls)
}

func TestSourceStatus(t *testing.T) {
	assert.Equal(t, model.LogStatusSuccess, sourceStatus(10, 5, nil))
	assert.Equal(t, model.LogStatusPartial, sourceStatus(10, 6, nil))
	assert.Equal(t, model.LogStatusError, sourceStatus(0, 0, errors.New("x")))
	assert.Equal(t, model.LogStatusPartial, sourceStatus(2, 1, errors.New("x")))
}

func TestFromRegistry(t *testing.T) {
	reg := source.NewRegistry()
	_, err := FromRegistry(reg, nil)([]model.Source{model.SourceDoda})
	require.Error(t, err)
}
