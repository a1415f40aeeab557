// Package normalize centralizes the text, address and company-name
// normalization shared by every source strategy and the refresh engine.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Prefectures lists the 47 prefectures in JIS order.
var Prefectures = []string{
	"北海道",
	"青森県", "岩手県", "宮城県", "秋田県", "山形県", "福島県",
	"茨城県", "栃木県", "群馬県", "埼玉県", "千葉県", "東京都", "神奈川県",
	"新潟県", "富山県", "石川県", "福井県", "山梨県", "長野県",
	"岐阜県", "静岡県", "愛知県", "三重県",
	"滋賀県", "京都府", "大阪府", "兵庫県", "奈良県", "和歌山県",
	"鳥取県", "島根県", "岡山県", "広島県", "山口県",
	"徳島県", "香川県", "愛媛県", "高知県",
	"福岡県", "佐賀県", "長崎県", "熊本県", "大分県", "宮崎県", "鹿児島県", "沖縄県",
}

// shortPrefectures maps a suffix-less name (e.g. "大阪") to its full form.
var shortPrefectures = func() map[string]string {
	m := make(map[string]string, len(Prefectures))
	for _, p := range Prefectures {
		if p == "北海道" {
			m[p] = p
			continue
		}
		m[strings.TrimRight(p, "都府県")] = p
	}
	return m
}()

var (
	spaceRe      = regexp.MustCompile(`[\s\p{Zs}]+`)
	postalRe     = regexp.MustCompile(`〒?\s*\d{3}-?\d{4}`)
	addrNoiseRe  = regexp.MustCompile(`(地図を見る|Googleマップ|MAP|アクセス|>\s*地図|\[地図\])`)
	cityRe       = regexp.MustCompile(`^(.+?[市区町村郡])`)
	wardInCityRe = regexp.MustCompile(`^(.+?市.+?区)`)
)

// Fold converts full-width ASCII to half-width and half-width katakana to
// full-width, leaving other text untouched.
func Fold(s string) string {
	return width.Fold.String(s)
}

// Text folds width and collapses runs of whitespace into one ASCII space.
func Text(s string) string {
	s = Fold(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Address cleans a scraped address: folds width, strips the postal code and
// map-link noise and collapses whitespace.
func Address(s string) string {
	s = Fold(s)
	s = postalRe.ReplaceAllString(s, " ")
	s = addrNoiseRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Prefecture returns the first prefecture named in s, accepting the short
// form without 都/府/県. It returns "" when none is found.
func Prefecture(s string) string {
	s = Text(s)
	best, bestIdx := "", -1
	for _, p := range Prefectures {
		if i := strings.Index(s, p); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			best, bestIdx = p, i
		}
	}
	if best != "" {
		return best
	}
	for short, full := range shortPrefectures {
		if i := strings.Index(s, short); i >= 0 && (bestIdx < 0 || i < bestIdx) {
			best, bestIdx = full, i
		}
	}
	return best
}

// Area derives "prefecture + municipality" from an address, e.g.
// "東京都千代田区丸の内1-1" gives "東京都千代田区". Designated cities keep
// their ward ("大阪府大阪市北区"). Returns just the prefecture when no
// municipality follows it.
func Area(address string) string {
	addr := Address(address)
	pref := Prefecture(addr)
	if pref == "" {
		return ""
	}
	i := strings.Index(addr, pref)
	if i < 0 {
		// Matched through the short form.
		short := strings.TrimRight(pref, "都府県")
		i = strings.Index(addr, short)
		if i < 0 {
			return pref
		}
		addr = addr[i+len(short):]
	} else {
		addr = addr[i+len(pref):]
	}
	addr = strings.TrimSpace(addr)
	if m := wardInCityRe.FindStringSubmatch(addr); m != nil && len([]rune(m[1])) <= 10 {
		return pref + m[1]
	}
	if m := cityRe.FindStringSubmatch(addr); m != nil && len([]rune(m[1])) <= 8 {
		return pref + m[1]
	}
	return pref
}

// corporateTokens are stripped before comparing company names.
var corporateTokens = []string{
	"株式会社", "有限会社", "合同会社", "合資会社", "合名会社",
	"一般社団法人", "公益社団法人", "社団法人", "一般財団法人", "公益財団法人", "財団法人",
	"社会福祉法人", "医療法人社団", "医療法人", "学校法人", "特定非営利活動法人", "NPO法人",
	"(株)", "(有)", "(合)", "㈱", "㈲",
	"co.,ltd.", "co., ltd.", "co.ltd.", "corporation", "corp.", "inc.", "ltd.", "llc",
}

// CompanyKey reduces a company name to a comparison key: NFKC, case-folded,
// corporate-entity tokens and all whitespace and punctuation removed.
func CompanyKey(name string) string {
	s := norm.NFKC.String(name)
	s = strings.ToLower(s)
	for _, tok := range corporateTokens {
		s = strings.ReplaceAll(s, norm.NFKC.String(tok), "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SameCompany reports whether two names refer to the same company using
// bidirectional containment of their keys. Empty keys never match.
func SameCompany(a, b string) bool {
	ka, kb := CompanyKey(a), CompanyKey(b)
	if ka == "" || kb == "" {
		return false
	}
	return strings.Contains(ka, kb) || strings.Contains(kb, ka)
}

var (
	dashRe  = regexp.MustCompile(`[‐‑‒–—―ーｰ−]`)
	phoneRe = regexp.MustCompile(`\(?0\d{1,4}\)?[-\s]?\d{1,4}[-\s]?\d{3,4}`)
)

// Dashes folds s and replaces the dash and long-vowel variants that
// Japanese pages use inside numbers with '-'.
func Dashes(s string) string {
	return dashRe.ReplaceAllString(Fold(s), "-")
}

// Phone returns the first Japanese phone number in s as digits joined by
// hyphens, or "" when none is present.
func Phone(s string) string {
	m := phoneRe.FindString(Dashes(s))
	if m == "" {
		return ""
	}
	m = strings.NewReplacer("(", "", ")", "-", " ", "-").Replace(m)
	for strings.Contains(m, "--") {
		m = strings.ReplaceAll(m, "--", "-")
	}
	m = strings.Trim(m, "-")
	digits := 0
	for _, r := range m {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 10 || digits > 11 {
		return ""
	}
	return m
}
