package source

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/normalize"
)

// FirstText returns the normalized text of the first selector that yields
// non-empty text under sel.
func FirstText(sel *goquery.Selection, selectors ...string) string {
	for _, q := range selectors {
		if t := normalize.Text(sel.Find(q).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// FirstLink returns the absolute href of the first selector under sel that
// has one.
func FirstLink(sel *goquery.Selection, pageURL string, selectors ...string) string {
	for _, q := range selectors {
		if href, ok := sel.Find(q).First().Attr("href"); ok {
			if abs := AbsURL(pageURL, href); abs != "" {
				return abs
			}
		}
	}
	return ""
}

// NextLink returns the absolute href of the first next-page control that
// exists and is not disabled. Disabled means the control or its parent
// carries one of the disabled classes, or an aria-disabled attribute.
func NextLink(doc *goquery.Document, pageURL string, selectors []string, disabledClasses ...string) string {
	for _, q := range selectors {
		ctrl := doc.Find(q).First()
		if ctrl.Length() == 0 {
			continue
		}
		if isDisabled(ctrl, disabledClasses) || isDisabled(ctrl.Parent(), disabledClasses) {
			return ""
		}
		href, ok := ctrl.Attr("href")
		if !ok {
			return ""
		}
		return AbsURL(pageURL, href)
	}
	return ""
}

func isDisabled(sel *goquery.Selection, classes []string) bool {
	if v, ok := sel.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	for _, c := range classes {
		if sel.HasClass(c) {
			return true
		}
	}
	return false
}

// CompanyFromCard strips the "| 本社..." style suffixes boards append to
// company names in cards.
func CompanyFromCard(name string) string {
	name = normalize.Text(name)
	for _, sep := range []string{"|", "｜", "【"} {
		if i := strings.Index(name, sep); i > 0 {
			name = strings.TrimSpace(name[:i])
		}
	}
	return name
}
