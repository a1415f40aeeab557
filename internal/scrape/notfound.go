package scrape

import (
	"regexp"
	"strings"
)

// notFoundLexicon holds phrases that mark an error or expired page. Matched
// case-insensitively against the title and the start of the body text.
// Listing labels such as 掲載終了予定日 must not match, so expiry phrases are
// full sentences.
var notFoundLexicon = []string{
	"not found",
	"ページが見つかりません",
	"ページは見つかりませんでした",
	"お探しのページ",
	"ページが存在しません",
	"ページは存在しません",
	"指定されたページ",
	"掲載を終了しました",
	"掲載は終了しています",
	"掲載が終了しました",
	"掲載は終了しました",
	"求人情報が見つかりません",
	"找不到",
	"页面不存在",
	"페이지를 찾을 수 없습니다",
}

var (
	// 404 as its own token in a title: not part of a phone number, postal
	// code or count.
	title404 = regexp.MustCompile(`(?:^|[\s(\[（【|｜:：])404(?:$|[\s)\]）】|｜:：.。!！])`)
	// 404 right next to an error word, for body text.
	error404 = regexp.MustCompile(`(?i)(?:^|[^0-9\-‐－〒])404\s*[:：|｜\-]?\s*(?:not found|error|エラー)|(?:not found|error|エラー)\s*[:：|｜\-]?\s*404(?:$|[^0-9\-‐－])`)
)

// shortBodyRunes bounds how much body text the not-found check inspects, so
// a listing that merely mentions an error phrase deep in its text is kept.
const shortBodyRunes = 300

// IsNotFound reports whether a page title or its leading body text marks
// an error or expired page.
func IsNotFound(title, bodyText string) bool {
	body := []rune(bodyText)
	if len(body) > shortBodyRunes {
		body = body[:shortBodyRunes]
	}
	if title404.MatchString(title) || error404.MatchString(string(body)) {
		return true
	}
	for _, s := range []string{title, string(body)} {
		lower := strings.ToLower(s)
		for _, phrase := range notFoundLexicon {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}
