package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/resilience"
)

const maxBodyBytes = 2 << 20

// HTTPSession serves browser pages over plain net/http. It cannot run
// scripts, so it only suits static corporate sites in the contact pass.
type HTTPSession struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string

	mu     sync.Mutex
	closed bool
}

// NewHTTPSession creates an HTTPSession. Requests across all pages share
// one limiter of rps requests per second; rps <= 0 disables limiting.
func NewHTTPSession(userAgent string, rps float64) *HTTPSession {
	if userAgent == "" {
		userAgent = browser.DefaultUserAgent
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return &HTTPSession{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter:   lim,
		userAgent: userAgent,
	}
}

// Launcher returns a browser.Launcher that hands out this session.
func (s *HTTPSession) Launcher() browser.Launcher {
	return browser.LauncherFunc(func(context.Context) (browser.Session, error) {
		return s, nil
	})
}

// NewPage implements browser.Session.
func (s *HTTPSession) NewPage(_ context.Context) (browser.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, eris.New("http session: closed")
	}
	return &httpPage{session: s}, nil
}

// Close implements browser.Session.
func (s *HTTPSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.client.CloseIdleConnections()
	return nil
}

type httpPage struct {
	session *HTTPSession
	history []string
	html    string
	title   string
	closed  bool
}

func (p *httpPage) Navigate(ctx context.Context, target string) error {
	html, final, err := p.session.fetch(ctx, target)
	if err != nil {
		return err
	}
	p.load(html)
	p.history = append(p.history, final)
	return nil
}

func (p *httpPage) load(html string) {
	p.html = html
	p.title = ""
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		p.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
}

func (p *httpPage) WaitReady(_ context.Context, selectors ...string) (string, error) {
	if len(selectors) == 0 {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return "", eris.Wrap(err, "http page: parse")
	}
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return sel, nil
		}
	}
	return "", browser.ErrNotReady
}

func (p *httpPage) WaitIdle(context.Context) error { return nil }

func (p *httpPage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *httpPage) Title(context.Context) (string, error) { return p.title, nil }

func (p *httpPage) URL(context.Context) (string, error) {
	if len(p.history) == 0 {
		return "about:blank", nil
	}
	return p.history[len(p.history)-1], nil
}

func (p *httpPage) Back(ctx context.Context) error {
	if len(p.history) < 2 {
		return eris.New("http page: no history")
	}
	p.history = p.history[:len(p.history)-1]
	prev := p.history[len(p.history)-1]
	html, _, err := p.session.fetch(ctx, prev)
	if err != nil {
		return err
	}
	p.load(html)
	return nil
}

func (p *httpPage) Close() error {
	p.closed = true
	return nil
}

// fetch GETs target, decodes the body to UTF-8 and rejects anti-bot walls
// and error statuses. It returns the post-redirect URL.
func (s *HTTPSession) fetch(ctx context.Context, target string) (string, string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", "", eris.Wrap(err, "http page: rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", "", eris.Wrap(err, "http page: create request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "ja,en-US;q=0.8,en;q=0.6")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", eris.Wrap(err, "http page: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", "", eris.Wrap(err, "http page: detect charset")
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", "", eris.Wrap(err, "http page: read body")
	}

	if blocked, bt := DetectBlock(resp, body); blocked {
		zap.L().Debug("http page: blocked", zap.String("url", target), zap.String("block", string(bt)))
		return "", "", eris.Errorf("http page: blocked (%s)", bt)
	}
	if resp.StatusCode >= 400 {
		err := eris.Errorf("http page: status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", "", err
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return string(body), final, nil
}
