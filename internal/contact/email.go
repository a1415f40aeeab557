package contact

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/normalize"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(?:\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}`)

	obfuscatedAtRe  = regexp.MustCompile(`(?i)\s*[\[(<{【]\s*(?:at|アット)\s*[\])>}】]\s*`)
	obfuscatedDotRe = regexp.MustCompile(`(?i)\s*[\[(<{【]\s*(?:dot|ドット)\s*[\])>}】]\s*`)

	noReplyRe = regexp.MustCompile(`^(?:no-?reply|do-?not-?reply|mailer-daemon|postmaster)`)
)

// preferredLocals win over any other address found on the same site.
var preferredLocals = []string{"info", "contact", "sales", "support"}

// Image names like logo@2x.png look like addresses.
var fileSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}

// emailCandidates returns addresses on the page in priority order: mailto
// links, then plain text, then [at]/[dot] obfuscations.
func emailCandidates(doc *goquery.Document, text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = strings.ToLower(strings.Trim(addr, ".-"))
		if addr == "" || seen[addr] || !validEmail(addr) {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
			return
		}
		addr, _, _ := strings.Cut(href[7:], "?")
		if dec, err := url.PathUnescape(addr); err == nil {
			addr = dec
		}
		for _, part := range strings.Split(addr, ",") {
			add(strings.TrimSpace(part))
		}
	})

	text = normalize.Fold(text)
	for _, m := range emailRe.FindAllString(text, -1) {
		add(m)
	}

	deobfuscated := obfuscatedDotRe.ReplaceAllString(obfuscatedAtRe.ReplaceAllString(text, "@"), ".")
	if deobfuscated != text {
		for _, m := range emailRe.FindAllString(deobfuscated, -1) {
			add(m)
		}
	}
	return out
}

func validEmail(addr string) bool {
	if !emailRe.MatchString(addr) || emailRe.FindString(addr) != addr {
		return false
	}
	local, _, _ := strings.Cut(addr, "@")
	if noReplyRe.MatchString(local) {
		return false
	}
	for _, suffix := range fileSuffixes {
		if strings.HasSuffix(addr, suffix) {
			return false
		}
	}
	return true
}

// pickEmail returns the first address with a preferred local part, falling
// back to the first address.
func pickEmail(cands []string) string {
	for _, addr := range cands {
		local, _, _ := strings.Cut(addr, "@")
		for _, p := range preferredLocals {
			if local == p {
				return addr
			}
		}
	}
	if len(cands) > 0 {
		return cands[0]
	}
	return ""
}
