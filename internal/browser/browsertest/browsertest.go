// Package browsertest provides an in-memory browser.Session that serves
// canned HTML, for tests that exercise strategies without Chrome.
package browsertest

import (
	"context"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobleads-cli/internal/browser"
)

// Response is what a fake page returns for one URL.
type Response struct {
	HTML  string
	Title string // overrides the document <title> when set
	Err   error  // returned from Navigate
}

// Session is a fake browser.Session. Routes are shared by every page it
// opens. Safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	routes   map[string]Response
	fallback func(url string) (Response, bool)
	pages    []*Page
	visits   []string
	closed   bool

	openIsolated    int
	maxOpenIsolated int

	// BackErr, when set, is returned by every page's Back.
	BackErr error
	// NewPageErr, when set, is returned by NewPage.
	NewPageErr error
}

// NewSession returns an empty fake session.
func NewSession() *Session {
	return &Session{routes: make(map[string]Response)}
}

// Handle registers html for url.
func (s *Session) Handle(url, html string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[url] = Response{HTML: html}
	return s
}

// HandleResponse registers a full response for url.
func (s *Session) HandleResponse(url string, r Response) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[url] = r
	return s
}

// Fallback sets a function consulted for URLs with no registered route.
func (s *Session) Fallback(fn func(url string) (Response, bool)) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = fn
	return s
}

// Launcher returns a launcher that always hands out s.
func (s *Session) Launcher() browser.Launcher {
	return browser.LauncherFunc(func(context.Context) (browser.Session, error) {
		return s, nil
	})
}

// NewPage opens a fake tab.
func (s *Session) NewPage(context.Context) (browser.Page, error) {
	return s.open(false)
}

// NewIsolatedPage opens a fake tab standing for a page in its own browser
// context.
func (s *Session) NewIsolatedPage(context.Context) (browser.Page, error) {
	return s.open(true)
}

func (s *Session) open(isolated bool) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NewPageErr != nil {
		return nil, s.NewPageErr
	}
	if s.closed {
		return nil, eris.New("browsertest: session closed")
	}
	p := &Page{session: s, isolated: isolated}
	s.pages = append(s.pages, p)
	if isolated {
		s.openIsolated++
		s.maxOpenIsolated = max(s.maxOpenIsolated, s.openIsolated)
	}
	return p, nil
}

// MaxOpenIsolated returns the most isolated pages that were open at once.
func (s *Session) MaxOpenIsolated() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpenIsolated
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Pages returns every page opened so far.
func (s *Session) Pages() []*Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Page(nil), s.pages...)
}

// Visits returns every URL navigated to, across all pages, in order.
func (s *Session) Visits() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visits...)
}

func (s *Session) lookup(url string) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, url)
	if r, ok := s.routes[url]; ok {
		return r, true
	}
	if s.fallback != nil {
		return s.fallback(url)
	}
	return Response{}, false
}

// Page is a fake browser.Page.
type Page struct {
	session  *Session
	isolated bool

	mu      sync.Mutex
	current string
	resp    Response
	history []string
	closed  bool
}

// Navigate loads the registered response for url. Unregistered URLs load
// an empty 404-like document.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, ok := p.session.lookup(url)
	if r.Err != nil {
		return r.Err
	}
	if !ok {
		r = Response{HTML: "<html><head><title>404 Not Found</title></head><body>Not Found</body></html>"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" {
		p.history = append(p.history, p.current)
	}
	p.current = url
	p.resp = r
	return nil
}

// WaitReady returns the first selector present in the current document.
func (p *Page) WaitReady(_ context.Context, selectors ...string) (string, error) {
	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return sel, nil
		}
	}
	return "", browser.ErrNotReady
}

// WaitIdle returns immediately.
func (p *Page) WaitIdle(context.Context) error { return nil }

// HTML returns the current document.
func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resp.HTML, nil
}

// Title returns the response title or the document <title>.
func (p *Page) Title(context.Context) (string, error) {
	p.mu.Lock()
	title := p.resp.Title
	p.mu.Unlock()
	if title != "" {
		return title, nil
	}
	doc, err := p.doc()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("title").First().Text()), nil
}

// URL returns the current URL.
func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

// Back returns to the previous URL, re-serving its response.
func (p *Page) Back(ctx context.Context) error {
	if p.session.BackErr != nil {
		return p.session.BackErr
	}
	p.mu.Lock()
	if len(p.history) == 0 {
		p.mu.Unlock()
		return eris.New("browsertest: no history")
	}
	prev := p.history[len(p.history)-1]
	p.history = p.history[:len(p.history)-1]
	p.mu.Unlock()

	r, _ := p.session.lookup(prev)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = prev
	p.resp = r
	return nil
}

// Close marks the page closed.
func (p *Page) Close() error {
	p.mu.Lock()
	already := p.closed
	p.closed = true
	p.mu.Unlock()
	if p.isolated && !already {
		p.session.mu.Lock()
		p.session.openIsolated--
		p.session.mu.Unlock()
	}
	return nil
}

// Isolated reports whether the page was opened with NewIsolatedPage.
func (p *Page) Isolated() bool { return p.isolated }

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) doc() (*goquery.Document, error) {
	p.mu.Lock()
	html := p.resp.HTML
	p.mu.Unlock()
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}
