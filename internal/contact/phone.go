package contact

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/jobleads-cli/internal/normalize"
)

// Phone patterns in match order. Each must expose the number as group 1.
var phonePatterns = []*regexp.Regexp{
	// labeled: "TEL: 03-1234-5678", "電話番号：0312345678"
	regexp.MustCompile(`(?i)(?:tel|phone|電話番号|電話|代表)\s*[:.]?\s*(\(?0\d{1,4}\)?[-\s]?\d{1,4}[-\s]?\d{3,4})`),
	// hyphenated
	regexp.MustCompile(`(?:^|[^\d-])(0\d{1,4}-\d{1,4}-\d{3,4})`),
	// parenthesized area or local code
	regexp.MustCompile(`(?:^|[^\d])(\(0\d{1,4}\)\s?\d{1,4}-\d{3,4}|0\d{1,4}\(\d{1,4}\)\d{3,4})`),
	// bare digits
	regexp.MustCompile(`(?:^|[^\d-])(0\d{9,10})(?:[^\d]|$)`),
}

// excludedPrefixes are number ranges that never reach the company itself.
var excludedPrefixes = []string{"0570", "0990"}

var tollFreePrefixes = []string{"0120", "0800"}

var phoneKeywords = []string{"tel", "電話", "代表", "お問い合わせ", "お問合せ", "問い合わせ", "連絡先"}

var faxLabels = []string{"fax", "ファックス", "ファクス"}

const (
	contextRunes = 100
	labelRunes   = 15
)

type phoneCandidate struct {
	number string
	start  int
	end    int
}

// findPhone picks the best phone number in text, or "" when none qualifies.
func findPhone(text string) string {
	text = normalize.Dashes(text)
	return rankPhones(text, phoneCandidates(text))
}

func phoneCandidates(text string) []phoneCandidate {
	var out []phoneCandidate
	seen := make(map[string]bool)
	for _, re := range phonePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[m[2]:m[3]]
			num := normalize.Phone(raw)
			key := strings.ReplaceAll(num, "-", "")
			if num == "" || seen[key] || hasPrefix(num, excludedPrefixes) {
				continue
			}
			seen[key] = true
			out = append(out, phoneCandidate{number: num, start: m[2], end: m[3]})
		}
	}
	// keep document order regardless of which pattern matched
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].start < out[j-1].start; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// rankPhones returns the first toll-free number, then the first number with
// a phone keyword nearby that is not labelled as a fax, then the first
// non-fax number, then the first number at all.
func rankPhones(text string, cands []phoneCandidate) string {
	if len(cands) == 0 {
		return ""
	}
	for _, c := range cands {
		if hasPrefix(c.number, tollFreePrefixes) && !isFax(text, c) {
			return c.number
		}
	}
	for _, c := range cands {
		if isFax(text, c) {
			continue
		}
		if containsAny(strings.ToLower(around(text, c.start, c.end, contextRunes)), phoneKeywords) {
			return c.number
		}
	}
	for _, c := range cands {
		if !isFax(text, c) {
			return c.number
		}
	}
	return cands[0].number
}

// isFax reports whether the label closest before c is a fax label.
func isFax(text string, c phoneCandidate) bool {
	before := strings.ToLower(text[runeOffsetBack(text, c.start, labelRunes):c.start])
	fax := lastIndexAny(before, faxLabels)
	if fax < 0 {
		return false
	}
	return fax > lastIndexAny(before, phoneKeywords)
}

func hasPrefix(num string, prefixes []string) bool {
	num = strings.ReplaceAll(num, "-", "")
	for _, p := range prefixes {
		if strings.HasPrefix(num, p) {
			return true
		}
	}
	return false
}

func around(text string, start, end, n int) string {
	from := runeOffsetBack(text, start, n)
	to := end
	for i := 0; i < n && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	return text[from:to]
}

func runeOffsetBack(text string, pos, n int) int {
	for i := 0; i < n && pos > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:pos])
		pos -= size
	}
	return pos
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lastIndexAny(s string, subs []string) int {
	best := -1
	for _, sub := range subs {
		if i := strings.LastIndex(s, sub); i > best {
			best = i
		}
	}
	return best
}
