package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// stealthJS hides the most common automation fingerprints before any page
// script runs.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined, configurable: true});
Object.defineProperty(navigator, 'languages', {get: () => ['ja-JP', 'ja', 'en-US', 'en'], configurable: true});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3], configurable: true});
if (!window.chrome) { window.chrome = {}; }
window.chrome.runtime = window.chrome.runtime || {};
`

// ChromeLauncher starts a Chrome instance through chromedp.
type ChromeLauncher struct {
	opts Options
}

// NewChromeLauncher returns a launcher using opts, filling unset fields
// from DefaultOptions.
func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{opts: opts.withDefaults()}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "ja-JP"),
	)
	if l.opts.Stealth {
		opts = append(opts,
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("excludeSwitches", "enable-automation"),
			chromedp.Flag("useAutomationExtension", false),
		)
	}
	if l.opts.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if l.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.opts.UserDataDir))
	}
	return opts
}

// Launch starts Chrome and verifies it responds by loading about:blank.
// Any failure here is fatal for the caller's run.
func (l *ChromeLauncher) Launch(ctx context.Context) (Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run binds the browser to the context it receives, so it
	// must get browserCtx itself; the timer bounds startup instead.
	timer := time.AfterFunc(l.opts.NavTimeout, browserCancel)
	err := chromedp.Run(browserCtx, chromedp.Navigate("about:blank"))
	timer.Stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, eris.Wrap(err, "browser: launch chrome")
	}

	zap.L().Debug("browser: chrome started",
		zap.Bool("headless", l.opts.Headless),
		zap.Bool("stealth", l.opts.Stealth),
	)

	return &chromeSession{
		opts:          l.opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type chromeSession struct {
	opts          Options
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewPage opens a new tab in the session's browser.
func (s *chromeSession) NewPage(ctx context.Context) (Page, error) {
	return s.openTab(ctx)
}

// NewIsolatedPage opens a tab in a fresh browser context. Chrome disposes of
// the context, cookies and storage included, when the page is closed.
func (s *chromeSession) NewIsolatedPage(ctx context.Context) (Page, error) {
	return s.openTab(ctx, chromedp.WithNewBrowserContext())
}

func (s *chromeSession) openTab(ctx context.Context, opts ...chromedp.ContextOption) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, eris.New("browser: session closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx, opts...)
	p := &chromePage{ctx: tabCtx, cancel: tabCancel, opts: s.opts}

	// Run once to create the target, installing the stealth script for
	// every document the tab loads from now on.
	var actions []chromedp.Action
	if s.opts.Stealth {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthJS).Do(ctx)
			return err
		}))
	}
	timer := time.AfterFunc(s.opts.NavTimeout, tabCancel)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx, actions...)
	timer.Stop()
	stop()
	if err != nil {
		tabCancel()
		return nil, eris.Wrap(err, "browser: open tab")
	}
	return p, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.browserCancel()
	s.allocCancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options
}

// run executes actions on the tab with a timeout, aborting early when the
// caller's ctx is cancelled.
func (p *chromePage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(tctx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, p.opts.NavTimeout, chromedp.Navigate(url)); err != nil {
		return eris.Wrapf(err, "browser: navigate %s", url)
	}
	return nil
}

func (p *chromePage) WaitReady(ctx context.Context, selectors ...string) (string, error) {
	for _, sel := range selectors {
		err := p.run(ctx, p.opts.SelectorTimeout, chromedp.WaitReady(sel, chromedp.ByQuery))
		if err == nil {
			return sel, nil
		}
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "browser: wait ready")
		}
	}
	return "", ErrNotReady
}

func (p *chromePage) WaitIdle(ctx context.Context) error {
	poll := chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
	})
	if err := p.run(ctx, p.opts.NavTimeout, poll, chromedp.Sleep(p.opts.IdleWait)); err != nil {
		return eris.Wrap(err, "browser: wait idle")
	}
	return nil
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, p.opts.NavTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: outer html")
	}
	return html, nil
}

func (p *chromePage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, p.opts.NavTimeout, chromedp.Title(&title)); err != nil {
		return "", eris.Wrap(err, "browser: title")
	}
	return title, nil
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, p.opts.NavTimeout, chromedp.Location(&loc)); err != nil {
		return "", eris.Wrap(err, "browser: location")
	}
	return loc, nil
}

func (p *chromePage) Back(ctx context.Context) error {
	if err := p.run(ctx, p.opts.NavTimeout, chromedp.NavigateBack()); err != nil {
		return eris.Wrap(err, "browser: navigate back")
	}
	return nil
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
