package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Pacer enforces the fixed waits between items and pages plus a ceiling
// on page loads. Delays are floors: a configured value below the site
// default is ignored.
type Pacer struct {
	itemDelay time.Duration
	pageDelay time.Duration
	nav       *rate.Limiter
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPacer builds a Pacer from the site profile and any overrides.
func NewPacer(p Profile, opts Options) *Pacer {
	rps := opts.NavigationsPerSecond
	if rps <= 0 {
		rps = DefaultNavigationRate
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Pacer{
		itemDelay: floor(opts.ItemDelay, p.ItemDelay),
		pageDelay: floor(opts.PageDelay, p.PageDelay),
		nav:       rate.NewLimiter(rate.Limit(rps), 1),
		sleep:     sleep,
	}
}

func floor(configured, def time.Duration) time.Duration {
	if configured <= 0 || configured < def {
		return def
	}
	return configured
}

// ItemDelay returns the effective inter-item wait.
func (p *Pacer) ItemDelay() time.Duration { return p.itemDelay }

// PageDelay returns the effective inter-page wait.
func (p *Pacer) PageDelay() time.Duration { return p.pageDelay }

// Item waits the inter-item delay.
func (p *Pacer) Item(ctx context.Context) error { return p.sleep(ctx, p.itemDelay) }

// Page waits the inter-page delay.
func (p *Pacer) Page(ctx context.Context) error { return p.sleep(ctx, p.pageDelay) }

// Navigation blocks until another page load is allowed.
func (p *Pacer) Navigation(ctx context.Context) error {
	if err := p.nav.Wait(ctx); err != nil {
		return eris.Wrap(err, "pacer: navigation")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
