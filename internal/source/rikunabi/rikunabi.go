// Package rikunabi scrapes リクナビNEXT. The listing plan is encoded in the
// detail URL path: premium listings live under an "nx1_" segment.
package rikunabi

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/rank"
	"github.com/sells-group/jobleads-cli/internal/scrape"
	"github.com/sells-group/jobleads-cli/internal/source"
)

const BaseURL = "https://next.rikunabi.com"

// PremiumSegment prefixes the path segment of paid-plan listings.
const PremiumSegment = "nx1_"

type Site struct {
	BaseURL   string
	FindLabel scrape.LabelFinder
	Ranker    rank.Classifier
	Labels    source.Labels
}

var _ source.Site = (*Site)(nil)

func New() *Site {
	return &Site{
		BaseURL:   BaseURL,
		FindLabel: scrape.FindLabel,
		Ranker:    rank.NewClassifier(rank.Policy{FirstPageIsB: true}),
		Labels:    source.DefaultLabels(),
	}
}

func (s *Site) Profile() source.Profile {
	return source.Profile{
		ID:              model.SourceRikunabi,
		Name:            "リクナビNEXT",
		PageCap:         5,
		ItemDelay:       2 * time.Second,
		PageDelay:       4 * time.Second,
		ListReady:       []string{".rnn-jobOfferList__item", "ul.rnn-jobOfferList", ".rnn-searchResult"},
		DetailReady:     []string{".rnn-detailTable", ".rn3-companyOfferTable", "#companyInfo"},
		RetryNavigation: true,
	}
}

func (s *Site) SearchURL(p source.Params) string {
	q := url.Values{}
	q.Set("fw", p.Keyword)
	if p.Location != "" {
		q.Set("wrk_plc_long_cd", p.Location)
	}
	return s.BaseURL + "/lst/?" + q.Encode()
}

func (s *Site) NameSearchURL(company string) string {
	return s.SearchURL(source.Params{Keyword: company})
}

func (s *Site) ParseCards(doc *goquery.Document, pageURL string) []source.Card {
	var cards []source.Card
	doc.Find(".rnn-jobOfferList__item").Each(func(_ int, c *goquery.Selection) {
		link := source.FirstLink(c, pageURL, ".rnn-jobOfferList__item__title a[href]", "a.rnn-linkText--black[href]", "a[href*='/company/']")
		cards = append(cards, source.Card{
			DetailURL:   link,
			CompanyName: source.CompanyFromCard(source.FirstText(c, ".rnn-jobOfferList__item__company__text", ".rnn-jobOfferList__item__company")),
			JobTitle:    source.FirstText(c, ".rnn-jobOfferList__item__title"),
			SalaryText:  s.FindLabel(c, "給与"),
			Area:        normalize.Area(normalize.Address(s.FindLabel(c, "勤務地"))),
			Sponsored:   Premium(link),
		})
	})
	return cards
}

// Premium reports whether a detail URL belongs to a paid-plan listing.
func Premium(detailURL string) bool {
	u, err := url.Parse(detailURL)
	if err != nil {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if strings.HasPrefix(seg, PremiumSegment) {
			return true
		}
	}
	return false
}

func (s *Site) NextPage(doc *goquery.Document, pageURL string) string {
	return source.NextLink(doc, pageURL, []string{".rnn-pagination__next a", "a.rnn-pagination__next", "a[rel='next']"}, "is-disabled", "rnn-pagination__next--disabled")
}

func (s *Site) ParseDetail(doc *goquery.Document, raw *model.RawListing) {
	if name := source.FirstText(doc.Selection, ".rn3-companyOfferHeader__heading", ".rnn-companyName", "h1 .company"); name != "" {
		raw.CompanyName = source.CompanyFromCard(name)
	}
	if raw.JobTitle == "" {
		raw.JobTitle = source.FirstText(doc.Selection, ".rn3-companyOfferHeader__lead", "h2.rnn-jobTitle")
	}
	scope := doc.Find(".rnn-detailTable, .rn3-companyOfferTable, #companyInfo")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	source.ApplyLabels(scope, s.FindLabel, s.Labels, raw)
}

func (s *Site) Classify(sig rank.Signals) (model.Rank, float64) {
	return s.Ranker(sig)
}
