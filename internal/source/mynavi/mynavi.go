// Package mynavi scrapes マイナビ転職. Paid placements carry an "attention"
// class on the result card.
package mynavi

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

// BaseURL is the board root.
const BaseURL = "https://tenshoku.mynavi.jp"

// Site implements source.Site for Mynavi.
type Site struct {
	BaseURL   string
	FindLabel scrape.LabelFinder
	Ranker    rank.Classifier
	Labels    source.Labels
}

var _ source.Site = (*Site)(nil)

// New returns the site with production defaults.
func New() *Site {
	l := source.DefaultLabels()
	l.Address = []string{"本社所在地", "所在地", "本社"}
	return &Site{
		BaseURL:   BaseURL,
		FindLabel: scrape.FindLabel,
		Ranker:    rank.NewClassifier(rank.Policy{FirstPageIsB: true}),
		Labels:    l,
	}
}

func (s *Site) Profile() source.Profile {
	return source.Profile{
		ID:          model.SourceMynavi,
		Name:        "マイナビ転職",
		PageCap:     10,
		ItemDelay:   2 * time.Second,
		PageDelay:   3 * time.Second,
		ListReady:   []string{".cassetteRecruit", ".cassetteRecruitRecommend", "#searchResultList"},
		DetailReady: []string{".jobOfferTable", ".companyTable", "#companyInfo"},
	}
}

func (s *Site) SearchURL(p source.Params) string {
	q := url.Values{}
	q.Set("keyword", p.Keyword)
	if p.Location != "" {
		q.Set("area", p.Location)
	}
	return s.BaseURL + "/list/?" + q.Encode()
}

func (s *Site) NameSearchURL(company string) string {
	return s.SearchURL(source.Params{Keyword: company})
}

func (s *Site) ParseCards(doc *goquery.Document, pageURL string) []source.Card {
	var cards []source.Card
	doc.Find(".cassetteRecruit, .cassetteRecruitRecommend").Each(func(_ int, c *goquery.Selection) {
		cards = append(cards, source.Card{
			DetailURL:   source.FirstLink(c, pageURL, ".cassetteRecruit__copy a[href]", "a.js__ga--setCookieOccName[href]", "a[href*='/jobinfo-']"),
			CompanyName: source.CompanyFromCard(source.FirstText(c, ".cassetteRecruit__name", ".cassetteRecruitRecommend__name")),
			JobTitle:    source.FirstText(c, ".cassetteRecruit__copy", ".cassetteRecruitRecommend__copy"),
			SalaryText:  s.FindLabel(c, "給与", "初年度年収"),
			Area:        normalize.Area(normalize.Address(s.FindLabel(c, "勤務地"))),
			Sponsored:   attention(c),
		})
	})
	return cards
}

// attention reports the paid "注目" placement, marked by a modifier class on
// the card or a badge element inside it.
func attention(c *goquery.Selection) bool {
	return c.HasClass("cassetteRecruit--attention") ||
		c.Find(".labelAttention, .cassetteRecruit__attention").Length() > 0
}

func (s *Site) NextPage(doc *goquery.Document, pageURL string) string {
	return source.NextLink(doc, pageURL, []string{".pager__next a", "a.iconFont--arrowLeft", "a[rel='next']"}, "is-disabled", "disabled")
}

func (s *Site) ParseDetail(doc *goquery.Document, raw *model.RawListing) {
	if name := source.FirstText(doc.Selection, ".companyName", "h1 .companyName", ".cassetteOfferRecapitulate__name"); name != "" {
		raw.CompanyName = source.CompanyFromCard(name)
	}
	if raw.JobTitle == "" {
		raw.JobTitle = source.FirstText(doc.Selection, ".occName", "h2.occName")
	}
	scope := doc.Find(".jobOfferTable, .companyTable, #companyInfo")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	source.ApplyLabels(scope, s.FindLabel, s.Labels, raw)
}

func (s *Site) Classify(sig rank.Signals) (model.Rank, float64) {
	return s.Ranker(sig)
}
