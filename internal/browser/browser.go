// Package browser wraps the automation driver behind explicit session and
// page handles. A Session owns the browser process; each Page is an
// isolated tab that must be closed by whoever opened it.
package browser

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotReady is returned by WaitReady when none of the selectors appeared.
var ErrNotReady = eris.New("browser: no ready selector matched")

// Page is a single navigable tab.
type Page interface {
	// Navigate loads url and waits for the main document.
	Navigate(ctx context.Context, url string) error
	// WaitReady waits for the first selector in the chain that becomes
	// ready and returns it. It returns ErrNotReady when none do.
	WaitReady(ctx context.Context, selectors ...string) (string, error)
	// WaitIdle waits for document.readyState to be complete plus a short
	// quiet window.
	WaitIdle(ctx context.Context) error
	// HTML returns the outer HTML of the current document.
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	// Back navigates one entry back in history.
	Back(ctx context.Context) error
	Close() error
}

// Session hands out isolated pages from one browser instance.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// IsolatingSession is a Session that can also open a page in a browser
// context of its own, sharing no cookies or storage with other pages.
// Closing that page disposes of the context.
type IsolatingSession interface {
	Session
	NewIsolatedPage(ctx context.Context) (Page, error)
}

// NewIsolatedPage opens an isolated page when s supports it and a plain page
// otherwise.
func NewIsolatedPage(ctx context.Context, s Session) (Page, error) {
	if is, ok := s.(IsolatingSession); ok {
		return is.NewIsolatedPage(ctx)
	}
	return s.NewPage(ctx)
}

// Launcher starts a browser session.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// Options configures the Chrome launcher.
type Options struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	UserDataDir     string
	WindowWidth     int
	WindowHeight    int
	NoSandbox       bool
	NavTimeout      time.Duration
	SelectorTimeout time.Duration
	IdleWait        time.Duration
	Stealth         bool
}

// DefaultUserAgent is a current desktop Chrome UA string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// DefaultOptions returns headless Chrome with stealth flags and the
// navigation timeouts used by every strategy.
func DefaultOptions() Options {
	return Options{
		Headless:        true,
		UserAgent:       DefaultUserAgent,
		WindowWidth:     1366,
		WindowHeight:    900,
		NavTimeout:      30 * time.Second,
		SelectorTimeout: 10 * time.Second,
		IdleWait:        1500 * time.Millisecond,
		Stealth:         true,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = d.UserAgent
	}
	if o.WindowWidth <= 0 || o.WindowHeight <= 0 {
		o.WindowWidth, o.WindowHeight = d.WindowWidth, d.WindowHeight
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = d.NavTimeout
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = d.SelectorTimeout
	}
	if o.IdleWait <= 0 {
		o.IdleWait = d.IdleWait
	}
	return o
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context) (Session, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context) (Session, error) { return f(ctx) }
