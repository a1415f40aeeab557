// Package source drives job-board search pagination and detail pages
// through a browser.Page and yields raw listings. Each job board plugs in
// as a Site; Strategy owns the shared pagination, pacing and error policy.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/rank"
	"github.com/sells-group/jobleads-cli/internal/resilience"
)

// Params selects what a scrape searches for.
type Params struct {
	Keyword  string `json:"keyword"`
	Location string `json:"location,omitempty"`
	// MaxPages lowers the site page cap when positive. It can never raise it.
	MaxPages int `json:"max_pages,omitempty"`
}

// Card is one entry of a search results page.
type Card struct {
	DetailURL   string
	CompanyName string
	JobTitle    string
	SalaryText  string
	Area        string
	// Sponsored carries the site's explicit paid-placement signal.
	Sponsored bool
}

// Profile holds the fixed per-site scraping constants.
type Profile struct {
	ID      model.Source
	Name    string
	PageCap int
	// ItemDelay and PageDelay are the minimum waits between detail pages
	// and between result pages.
	ItemDelay time.Duration
	PageDelay time.Duration
	// ListReady and DetailReady are fallback chains: the first selector to
	// appear marks the page ready. When none appears the strategy falls back
	// to waiting for network idle.
	ListReady   []string
	DetailReady []string
	// RetryNavigation enables linear-backoff retries on page loads.
	RetryNavigation bool
}

// Site is one job board.
type Site interface {
	Profile() Profile
	// SearchURL builds the first results page URL.
	SearchURL(p Params) string
	// NameSearchURL builds a results URL that searches for one company.
	NameSearchURL(company string) string
	ParseCards(doc *goquery.Document, pageURL string) []Card
	// NextPage returns the next results page URL, or "" when the control is
	// missing or disabled.
	NextPage(doc *goquery.Document, pageURL string) string
	// ParseDetail fills raw from a detail page.
	ParseDetail(doc *goquery.Document, raw *model.RawListing)
	// Classify maps rank signals to a budget tier and confidence.
	Classify(sig rank.Signals) (model.Rank, float64)
}

// Options tune a Strategy at construction. Zero values keep the site
// profile.
type Options struct {
	ItemDelay time.Duration
	PageDelay time.Duration
	PageCap   int
	// NavigationsPerSecond caps page loads; <= 0 uses DefaultNavigationRate.
	NavigationsPerSecond float64
	NavRetry             resilience.RetryConfig
	// Sleep replaces the timer-based wait, for tests that record delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultNavigationRate is the page-load ceiling shared by all sites.
const DefaultNavigationRate = 1.0

// LogFunc receives operator-facing log lines.
type LogFunc func(msg string)

// ItemError is yielded when one listing could not be extracted. The stream
// continues after it.
type ItemError struct {
	URL string
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %s: %v", e.URL, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
