package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/rank"
	"github.com/sells-group/jobleads-cli/internal/resilience"
	"github.com/sells-group/jobleads-cli/internal/scrape"
)

var errNotFound = eris.New("detail page not found")

// Strategy scrapes one Site. A Strategy may be reused across runs, but each
// Scrape call needs a fresh page to be retried.
type Strategy struct {
	site    Site
	profile Profile
	pacer   *Pacer
	retry   resilience.RetryConfig
	log     *zap.Logger
}

// NewStrategy wraps site with its pacing and retry policy.
func NewStrategy(site Site, opts Options) *Strategy {
	p := site.Profile()
	if opts.PageCap > 0 && opts.PageCap < p.PageCap {
		p.PageCap = opts.PageCap
	}
	retry := opts.NavRetry
	if retry.MaxAttempts == 0 {
		retry = resilience.NavigationRetryConfig()
	}
	if !p.RetryNavigation {
		retry = resilience.RetryConfig{MaxAttempts: 1}
	}
	retry.OnRetry = resilience.RetryLogger(string(p.ID), "navigate")
	return &Strategy{
		site:    site,
		profile: p,
		pacer:   NewPacer(p, opts),
		retry:   retry,
		log:     zap.L().With(zap.String("component", "source"), zap.String("source", string(p.ID))),
	}
}

// Source returns the site id.
func (s *Strategy) Source() model.Source { return s.profile.ID }

// Profile returns the effective profile.
func (s *Strategy) Profile() Profile { return s.profile }

// Pacer returns the strategy's pacer.
func (s *Strategy) Pacer() *Pacer { return s.pacer }

// Scrape walks the search results for params and yields one listing per
// detail page. Per-listing failures are yielded as *ItemError and the walk
// continues; any other error ends the stream. The caller may stop early by
// breaking out of the range loop.
func (s *Strategy) Scrape(ctx context.Context, page browser.Page, params Params, logf LogFunc) iter.Seq2[*model.RawListing, error] {
	if logf == nil {
		logf = func(string) {}
	}
	return func(yield func(*model.RawListing, error) bool) {
		searchURL := s.site.SearchURL(params)
		pageCap := s.profile.PageCap
		if params.MaxPages > 0 && params.MaxPages < pageCap {
			pageCap = params.MaxPages
		}

		pageURL := searchURL
		position := 0
		for pageNum := 1; pageNum <= pageCap; pageNum++ {
			if pageNum > 1 {
				if err := s.pacer.Page(ctx); err != nil {
					yield(nil, eris.Wrap(err, "source: page delay"))
					return
				}
			}

			logf(fmt.Sprintf("%s: loading results page %d", s.profile.Name, pageNum))
			doc, err := s.loadList(ctx, page, pageURL)
			if err != nil {
				if pageNum == 1 {
					yield(nil, eris.Wrapf(err, "source: %s search", s.profile.ID))
					return
				}
				s.log.Warn("results page failed, stopping pagination", zap.Int("page", pageNum), zap.Error(err))
				logf(fmt.Sprintf("%s: page %d failed to load, stopping", s.profile.Name, pageNum))
				return
			}

			cards := s.site.ParseCards(doc, pageURL)
			next := s.site.NextPage(doc, pageURL)
			s.log.Debug("results page parsed", zap.Int("page", pageNum), zap.Int("cards", len(cards)))

			yielded := 0
			for i, card := range cards {
				position++
				if i > 0 {
					if err := s.pacer.Item(ctx); err != nil {
						yield(nil, eris.Wrap(err, "source: item delay"))
						return
					}
				}

				sig := rank.Signals{Sponsored: card.Sponsored, Position: position, Page: pageNum}
				raw, err := s.detail(ctx, page, card, sig)
				switch {
				case errors.Is(err, errNotFound):
					logf(fmt.Sprintf("%s: listing gone, skipping %s", s.profile.Name, card.DetailURL))
				case err != nil && ctx.Err() != nil:
					yield(nil, eris.Wrap(ctx.Err(), "source: cancelled"))
					return
				case err != nil:
					if !yield(nil, &ItemError{URL: card.DetailURL, Err: err}) {
						return
					}
				default:
					yielded++
					if !yield(raw, nil) {
						return
					}
				}

				if i == len(cards)-1 {
					break
				}
				if err := s.backToList(ctx, page, pageURL); err != nil {
					s.log.Warn("return to results failed, reloading search", zap.Error(err))
					logf(fmt.Sprintf("%s: could not return to results, abandoning page %d", s.profile.Name, pageNum))
					if err := s.navigate(ctx, page, searchURL); err != nil {
						yield(nil, eris.Wrap(err, "source: reload search"))
						return
					}
					break
				}
			}

			if yielded == 0 {
				logf(fmt.Sprintf("%s: no listings on page %d, done", s.profile.Name, pageNum))
				return
			}
			if next == "" {
				return
			}
			pageURL = next
		}
		logf(fmt.Sprintf("%s: reached page cap %d", s.profile.Name, pageCap))
	}
}

// SearchByName runs a company-name search and returns the first results
// page as ranked listings. An empty result is not an error.
func (s *Strategy) SearchByName(ctx context.Context, page browser.Page, company string) ([]*model.RawListing, error) {
	target := s.site.NameSearchURL(company)
	doc, err := s.loadList(ctx, page, target)
	if err != nil {
		return nil, eris.Wrapf(err, "source: %s name search", s.profile.ID)
	}
	cards := s.site.ParseCards(doc, target)
	out := make([]*model.RawListing, 0, len(cards))
	for i, c := range cards {
		r, conf := s.site.Classify(rank.Signals{Sponsored: c.Sponsored, Position: i + 1, Page: 1})
		out = append(out, &model.RawListing{
			Source:         s.profile.ID,
			DetailURL:      c.DetailURL,
			CompanyName:    normalize.Text(c.CompanyName),
			JobTitle:       normalize.Text(c.JobTitle),
			SalaryText:     c.SalaryText,
			Area:           c.Area,
			BudgetRank:     r,
			RankConfidence: conf,
			Position:       i + 1,
			ScrapeStatus:   model.ScrapeStatusStep1,
		})
	}
	return out, nil
}

func (s *Strategy) navigate(ctx context.Context, page browser.Page, target string) error {
	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		if err := s.pacer.Navigation(ctx); err != nil {
			return err
		}
		return page.Navigate(ctx, target)
	})
}

// loadList navigates to a results page and returns it parsed. A missing
// ready selector is not fatal: the page may simply have no results.
func (s *Strategy) loadList(ctx context.Context, page browser.Page, target string) (*goquery.Document, error) {
	if err := s.navigate(ctx, page, target); err != nil {
		return nil, err
	}
	return s.ready(ctx, page, s.profile.ListReady)
}

func (s *Strategy) ready(ctx context.Context, page browser.Page, selectors []string) (*goquery.Document, error) {
	if _, err := page.WaitReady(ctx, selectors...); err != nil {
		if !errors.Is(err, browser.ErrNotReady) {
			return nil, err
		}
		if err := page.WaitIdle(ctx); err != nil {
			return nil, err
		}
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	if blocked, bt := scrape.DetectBlockHTML(html); blocked {
		return nil, eris.Errorf("blocked (%s)", bt)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}
	return doc, nil
}

func (s *Strategy) detail(ctx context.Context, page browser.Page, card Card, sig rank.Signals) (*model.RawListing, error) {
	if card.DetailURL == "" {
		return nil, eris.New("card has no detail link")
	}
	if err := s.navigate(ctx, page, card.DetailURL); err != nil {
		return nil, eris.Wrap(err, "navigate")
	}
	doc, err := s.ready(ctx, page, s.profile.DetailReady)
	if err != nil {
		return nil, err
	}

	title, _ := page.Title(ctx)
	if scrape.IsNotFound(title, doc.Find("body").Text()) {
		return nil, errNotFound
	}

	raw := &model.RawListing{
		Source:       s.profile.ID,
		DetailURL:    card.DetailURL,
		CompanyName:  card.CompanyName,
		JobTitle:     card.JobTitle,
		SalaryText:   card.SalaryText,
		Area:         card.Area,
		Position:     sig.Position,
		ScrapeStatus: model.ScrapeStatusStep1,
	}
	s.site.ParseDetail(doc, raw)

	raw.CompanyName = normalize.Text(raw.CompanyName)
	raw.JobTitle = normalize.Text(raw.JobTitle)
	raw.SalaryText = normalize.Text(raw.SalaryText)
	if raw.CompanyName == "" {
		return nil, eris.New("company name not found")
	}
	raw.BudgetRank, raw.RankConfidence = s.site.Classify(sig)
	return raw, nil
}

// backToList returns the page to the results list after a detail visit.
func (s *Strategy) backToList(ctx context.Context, page browser.Page, pageURL string) error {
	current, err := page.URL(ctx)
	if err == nil && sameURL(current, pageURL) {
		return nil
	}
	if err := page.Back(ctx); err != nil {
		return err
	}
	current, err = page.URL(ctx)
	if err != nil {
		return err
	}
	if !sameURL(current, pageURL) {
		return eris.Errorf("back landed on %s", current)
	}
	return nil
}

func sameURL(a, b string) bool {
	trim := func(u string) string {
		if i := strings.IndexByte(u, '#'); i >= 0 {
			u = u[:i]
		}
		return strings.TrimSuffix(u, "/")
	}
	return trim(a) == trim(b)
}
