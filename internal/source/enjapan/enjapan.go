// Package enjapan scrapes エン転職. The board exposes no paid-placement
// markup, so ranks come from list position alone.
package enjapan

import (
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/rank"
	"github.com/sells-group/jobleads-cli/internal/scrape"
	"github.com/sells-group/jobleads-cli/internal/source"
)

const BaseURL = "https://employment.en-japan.com"

type Site struct {
	BaseURL   string
	FindLabel scrape.LabelFinder
	Ranker    rank.Classifier
	Labels    source.Labels
}

var _ source.Site = (*Site)(nil)

func New() *Site {
	l := source.DefaultLabels()
	l.Homepage = []string{"企業ホームページ", "ホームページ", "URL"}
	return &Site{
		BaseURL:   BaseURL,
		FindLabel: scrape.FindLabel,
		Ranker:    rank.NewClassifier(rank.Policy{PositionThreshold: 20}),
		Labels:    l,
	}
}

func (s *Site) Profile() source.Profile {
	return source.Profile{
		ID:          model.SourceEnJapan,
		Name:        "エン転職",
		PageCap:     8,
		ItemDelay:   2 * time.Second,
		PageDelay:   3 * time.Second,
		ListReady:   []string{".jobSearchListUnit", ".list .unit"},
		DetailReady: []string{".companyTable", ".dataTable", "#descCompany"},
	}
}

func (s *Site) SearchURL(p source.Params) string {
	q := url.Values{}
	q.Set("keyword", p.Keyword)
	if p.Location != "" {
		q.Set("areaid", p.Location)
	}
	return s.BaseURL + "/search/search_list/?" + q.Encode()
}

func (s *Site) NameSearchURL(company string) string {
	return s.SearchURL(source.Params{Keyword: company})
}

func (s *Site) ParseCards(doc *goquery.Document, pageURL string) []source.Card {
	var cards []source.Card
	doc.Find(".jobSearchListUnit, .list .unit").Each(func(_ int, c *goquery.Selection) {
		cards = append(cards, source.Card{
			DetailURL:   source.FirstLink(c, pageURL, "a.unitLink[href]", ".jobNameArea a[href]", "a[href*='/desc_']"),
			CompanyName: source.CompanyFromCard(source.FirstText(c, ".company .name", ".companyName")),
			JobTitle:    source.FirstText(c, ".jobNameText", ".jobName"),
			SalaryText:  s.FindLabel(c, "給与"),
			Area:        normalize.Area(normalize.Address(s.FindLabel(c, "勤務地"))),
		})
	})
	return cards
}

func (s *Site) NextPage(doc *goquery.Document, pageURL string) string {
	return source.NextLink(doc, pageURL, []string{"a.next", ".pagerArea .next a", "a[rel='next']"}, "disabled", "is-disabled")
}

func (s *Site) ParseDetail(doc *goquery.Document, raw *model.RawListing) {
	if name := source.FirstText(doc.Selection, ".companyName", ".descArticleUnit .company"); name != "" {
		raw.CompanyName = source.CompanyFromCard(name)
	}
	scope := doc.Find(".companyTable, .dataTable, #descCompany")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	source.ApplyLabels(scope, s.FindLabel, s.Labels, raw)
}

func (s *Site) Classify(sig rank.Signals) (model.Rank, float64) {
	return s.Ranker(sig)
}
