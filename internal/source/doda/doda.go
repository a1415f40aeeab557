// Package doda scrapes doda. Sponsored cards are flagged with a data
// attribute, and page loads are retried because the board throttles bursts.
package doda

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

// BaseURL is the board root.
const BaseURL = "https://doda.jp"

// sponsorAttrs are checked in order; any truthy value marks a paid card.
var sponsorAttrs = []string{"data-sponsored", "data-pr", "data-ad-type"}

type Site struct {
	BaseURL   string
	FindLabel scrape.LabelFinder
	Ranker    rank.Classifier
	Labels    source.Labels
}

var _ source.Site = (*Site)(nil)

func New() *Site {
	l := source.DefaultLabels()
	l.Industry = []string{"事業概要", "業種", "事業内容"}
	l.Revenue = []string{"売上高", "売上収益"}
	return &Site{
		BaseURL:   BaseURL,
		FindLabel: scrape.FindLabel,
		Ranker:    rank.NewClassifier(rank.Policy{PositionThreshold: 20}),
		Labels:    l,
	}
}

func (s *Site) Profile() source.Profile {
	return source.Profile{
		ID:              model.SourceDoda,
		Name:            "doda",
		PageCap:         5,
		ItemDelay:       3 * time.Second,
		PageDelay:       5 * time.Second,
		ListReady:       []string{"[data-job-id]", ".jobSearchCard", ".layoutList02"},
		DetailReady:     []string{"#company_profile_table", ".jobDescriptionTable", "table.tblDetail01"},
		RetryNavigation: true,
	}
}

func (s *Site) SearchURL(p source.Params) string {
	q := url.Values{}
	q.Set("kw", p.Keyword)
	if p.Location != "" {
		q.Set("ar", p.Location)
	}
	q.Set("ss", "1")
	return s.BaseURL + "/DodaFront/View/JobSearchList.action?" + q.Encode()
}

func (s *Site) NameSearchURL(company string) string {
	return s.SearchURL(source.Params{Keyword: company})
}

func (s *Site) ParseCards(doc *goquery.Document, pageURL string) []source.Card {
	cards := doc.Find("[data-job-id]")
	if cards.Length() == 0 {
		cards = doc.Find(".jobSearchCard, .layoutList02")
	}
	out := make([]source.Card, 0, cards.Length())
	cards.Each(func(_ int, c *goquery.Selection) {
		salary := s.FindLabel(c, "給与", "年収")
		if salary == "" {
			salary = source.FirstText(c, ".salary", ".jobSearchCard__salary")
		}
		out = append(out, source.Card{
			DetailURL:   source.FirstLink(c, pageURL, "a.jobSearchCard__link[href]", "a[href*='JobSearchDetail']", "a[href*='/j_jid__']"),
			CompanyName: source.CompanyFromCard(source.FirstText(c, ".jobSearchCard__company", ".company")),
			JobTitle:    source.FirstText(c, ".jobSearchCard__title", ".job"),
			SalaryText:  salary,
			Area:        normalize.Area(normalize.Address(s.FindLabel(c, "勤務地"))),
			Sponsored:   sponsored(c),
		})
	})
	return out
}

func sponsored(c *goquery.Selection) bool {
	for _, attr := range sponsorAttrs {
		v, ok := c.Attr(attr)
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "none":
		default:
			return true
		}
	}
	return false
}

func (s *Site) NextPage(doc *goquery.Document, pageURL string) string {
	return source.NextLink(doc, pageURL, []string{".pagination .next a", "a.pagination__next", "a[rel='next']"}, "disabled", "is-disabled")
}

func (s *Site) ParseDetail(doc *goquery.Document, raw *model.RawListing) {
	if name := source.FirstText(doc.Selection, ".jobSearchDetail-heading__companyName", ".head_title .company", "h1 .company"); name != "" {
		raw.CompanyName = source.CompanyFromCard(name)
	}
	if raw.JobTitle == "" {
		raw.JobTitle = source.FirstText(doc.Selection, ".jobSearchDetail-heading__title", ".head_title .job")
	}
	scope := doc.Find("#company_profile_table, .jobDescriptionTable, table.tblDetail01")
	if scope.Length() == 0 {
		scope = doc.Selection
	}
	source.ApplyLabels(scope, s.FindLabel, s.Labels, raw)
}

func (s *Site) Classify(sig rank.Signals) (model.Rank, float64) {
	return s.Ranker(sig)
}
