// Package contact visits a company's own website to find a phone number,
// an email address, and the inquiry form URL that job boards do not show.
package contact

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobleads-cli/internal/browser"
	"github.com/sells-group/jobleads-cli/internal/scrape"
)

// DefaultPaths are the company pages tried after the homepage, most
// productive first.
var DefaultPaths = []string{
	"/company/",
	"/about/",
	"/contact/",
	"/corporate/",
	"/company/profile/",
	"/gaiyou/",
	"/inquiry/",
	"/otoiawase/",
	"/info/",
	"/access/",
}

// priorityRegions are searched before the whole page.
var priorityRegions = []string{
	"footer",
	"address",
	"[class*='contact']",
	"[id*='contact']",
	"[class*='company']",
	"[id*='company']",
	"[class*='info']",
	"table",
	"dl",
}

// Anchor text and href fragments that point at company or inquiry pages.
var (
	companyHints = []string{"会社概要", "企業情報", "会社案内", "company", "about", "corporate", "gaiyou"}
	contactHints = []string{"お問い合わせ", "お問合せ", "問い合わせ", "contact", "inquiry", "toiawase", "otoiawase"}
)

// Result holds whatever was found. Empty fields mean not found.
type Result struct {
	Phone          string
	Email          string
	ContactPageURL string
	Visited        int
}

// Complete reports whether both phone and email were found.
func (r Result) Complete() bool { return r.Phone != "" && r.Email != "" }

// Extractor walks a company site page by page. The zero value is not
// usable; use New.
type Extractor struct {
	paths    []string
	maxPages int
	matcher  *scrape.PathMatcher
	log      *zap.Logger
}

// Config tunes an Extractor. Zero values select the defaults. MaxPages caps
// the pages one Extract call visits; zero tries every discovered link and
// every path.
type Config struct {
	Paths           []string
	MaxPages        int
	ExcludePatterns []string
}

// New returns an Extractor.
func New(cfg Config) *Extractor {
	e := &Extractor{
		paths:    cfg.Paths,
		maxPages: cfg.MaxPages,
		matcher:  scrape.NewPathMatcher(cfg.ExcludePatterns),
		log:      zap.L().With(zap.String("component", "contact")),
	}
	if len(e.paths) == 0 {
		e.paths = DefaultPaths
	}
	if e.maxPages < 0 {
		e.maxPages = 0
	}
	return e
}

// Extract visits homepageURL and then likely company pages until both a
// phone and an email are found, every candidate page has been tried, or an
// explicit page cap is spent. Navigation
// failures and not-found pages are skipped. It never fails; a cancelled
// context ends the walk with whatever was found so far.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, homepageURL string, logf func(string)) Result {
	var res Result
	home, err := parseHomepage(homepageURL)
	if err != nil {
		e.log.Debug("skip invalid homepage", zap.String("url", homepageURL), zap.Error(err))
		return res
	}
	say := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		e.log.Debug(msg, zap.String("homepage", home.String()))
		if logf != nil {
			logf(msg)
		}
	}

	queue := []string{home.String()}
	queued := map[string]bool{strings.TrimSuffix(home.String(), "/"): true}
	push := func(u string) {
		key := strings.TrimSuffix(u, "/")
		if queued[key] {
			return
		}
		queued[key] = true
		queue = append(queue, u)
	}

	for i := 0; i < len(queue) && !e.capped(res.Visited); i++ {
		if ctx.Err() != nil {
			break
		}
		target := queue[i]
		doc, ok := e.load(ctx, page, target)
		res.Visited++
		if !ok {
			say("contact: skipped %s", target)
			continue
		}

		if i == 0 {
			links := e.discover(doc, home)
			if res.ContactPageURL == "" && len(links.contact) > 0 {
				res.ContactPageURL = links.contact[0]
			}
			for _, u := range links.contact {
				push(u)
			}
			for _, u := range links.company {
				push(u)
			}
			for _, p := range e.paths {
				if u, ok := e.matcher.Resolve(home, p); ok {
					push(u)
				}
			}
		}

		if res.ContactPageURL == "" && i > 0 && hasInquiryForm(doc) {
			res.ContactPageURL = target
		}
		if res.Phone == "" {
			res.Phone = pagePhone(doc)
		}
		if res.Email == "" {
			res.Email = pageEmail(doc)
		}
		if res.Complete() {
			break
		}
	}

	if res.Phone != "" || res.Email != "" {
		say("contact: phone=%q email=%q after %d pages", res.Phone, res.Email, res.Visited)
	}
	return res
}

func (e *Extractor) capped(visited int) bool {
	return e.maxPages > 0 && visited >= e.maxPages
}

// load navigates and parses target, reporting false for failures, blocks
// and not-found pages.
func (e *Extractor) load(ctx context.Context, page browser.Page, target string) (*goquery.Document, bool) {
	if err := page.Navigate(ctx, target); err != nil {
		e.log.Debug("navigate failed", zap.String("url", target), zap.Error(err))
		return nil, false
	}
	_ = page.WaitIdle(ctx)
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, false
	}
	if blocked, kind := scrape.DetectBlockHTML(html); blocked {
		e.log.Debug("blocked", zap.String("url", target), zap.String("type", string(kind)))
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	title, _ := page.Title(ctx)
	if scrape.IsNotFound(title, scrape.BlockText(doc.Find("body"))) {
		return nil, false
	}
	return doc, true
}

type discovered struct {
	contact []string
	company []string
}

func (e *Extractor) discover(doc *goquery.Document, home *url.URL) discovered {
	var d discovered
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, ok := e.matcher.Resolve(home, href)
		if !ok {
			return
		}
		hint := strings.ToLower(a.Text() + " " + href)
		switch {
		case containsAny(hint, contactHints):
			d.contact = append(d.contact, u)
		case containsAny(hint, companyHints):
			d.company = append(d.company, u)
		}
	})
	return d
}

// pagePhone searches priority regions first and the whole page second.
func pagePhone(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find("a[href^='tel:']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		b.WriteString("TEL " + strings.TrimPrefix(href, "tel:") + "\n")
	})
	b.WriteString(regionText(doc))
	if p := findPhone(b.String()); p != "" {
		return p
	}
	return findPhone(scrape.BlockText(doc.Selection))
}

// pageEmail works like pagePhone: an address in the footer or company table
// wins over one that only appears elsewhere on the page.
func pageEmail(doc *goquery.Document) string {
	if e := pickEmail(emailCandidates(doc, regionText(doc))); e != "" {
		return e
	}
	return pickEmail(emailCandidates(doc, scrape.BlockText(doc.Selection)))
}

func regionText(doc *goquery.Document) string {
	var b strings.Builder
	for _, sel := range priorityRegions {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			b.WriteString(scrape.BlockText(s))
			b.WriteByte('\n')
		})
	}
	return b.String()
}

func hasInquiryForm(doc *goquery.Document) bool {
	return doc.Find("form textarea").Length() > 0 || doc.Find("form input[type='email']").Length() > 0
}

func parseHomepage(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, eris.New("contact: empty homepage url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, eris.Wrap(err, "contact: parse homepage")
	}
	if u.Host == "" {
		return nil, eris.Errorf("contact: no host in %q", raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u, nil
}
