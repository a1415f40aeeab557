// Package scrape holds page-level helpers shared by the board strategies and
// the contact crawler.
package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/jobleads-cli/internal/normalize"
)

// LabelFinder looks up the value printed next to the first matching label.
// Sites can swap in their own finder when their markup needs it.
type LabelFinder func(doc *goquery.Selection, labels ...string) string

// FindLabel tries definition lists (dt/dd), then tables (th/td), then free
// text of the form "Label: value", returning the first hit. Labels are
// tried in the order given within each layout. A miss returns "".
func FindLabel(doc *goquery.Selection, labels ...string) string {
	if v := findDefinition(doc, labels); v != "" {
		return v
	}
	if v := findTable(doc, labels); v != "" {
		return v
	}
	return findInline(doc, labels)
}

var labelTrim = strings.NewReplacer("：", "", ":", "", "【", "", "】", "", "■", "", "●", "", "◆", "")

func cleanLabel(s string) string {
	return strings.TrimSpace(labelTrim.Replace(normalize.Text(s)))
}

func labelMatches(cell, label string) bool {
	c := cleanLabel(cell)
	if c == "" {
		return false
	}
	return c == label || (strings.Contains(c, label) && len([]rune(c)) <= len([]rune(label))+8)
}

func findDefinition(doc *goquery.Selection, labels []string) string {
	dts := doc.Find("dt")
	for _, label := range labels {
		var val string
		dts.EachWithBreak(func(_ int, dt *goquery.Selection) bool {
			if !labelMatches(dt.Text(), label) {
				return true
			}
			dd := dt.NextFiltered("dd")
			if dd.Length() == 0 {
				return true
			}
			val = BlockText(dd)
			return val == ""
		})
		if val != "" {
			return val
		}
	}
	return ""
}

func findTable(doc *goquery.Selection, labels []string) string {
	ths := doc.Find("th")
	for _, label := range labels {
		var val string
		ths.EachWithBreak(func(_ int, th *goquery.Selection) bool {
			if !labelMatches(th.Text(), label) {
				return true
			}
			td := th.NextFiltered("td")
			if td.Length() == 0 {
				td = th.Parent().Find("td").First()
			}
			if td.Length() == 0 {
				return true
			}
			val = BlockText(td)
			return val == ""
		})
		if val != "" {
			return val
		}
	}
	return ""
}

func findInline(doc *goquery.Selection, labels []string) string {
	text := BlockText(doc)
	for _, label := range labels {
		re := regexp.MustCompile(`(?m)^[\s【■●◆]*` + regexp.QuoteMeta(label) + `[】\s]*[:：]\s*(.+)$`)
		if m := re.FindStringSubmatch(text); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

var blockTags = map[string]bool{
	"p": true, "div": true, "li": true, "ul": true, "ol": true, "tr": true, "table": true,
	"dl": true, "dt": true, "dd": true, "section": true, "article": true, "header": true,
	"footer": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"address": true, "th": true, "td": true, "nav": true, "aside": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// BlockText returns the visible text of sel with a newline at every block
// boundary and <br>, width-folded and with blank lines removed.
func BlockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.Data]
		if block {
			b.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = normalize.Text(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
