package source

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
	"github.com/sells-group/jobleads-cli/internal/scrape"
)

// Labels lists, per RawListing field, the row labels a detail page may use,
// most specific first.
type Labels struct {
	Representative []string
	Establishment  []string
	EmployeeCount  []string
	Revenue        []string
	Industry       []string
	Address        []string
	Homepage       []string
	Phone          []string
	Email          []string
	Salary         []string
	EmploymentType []string
	Description    []string
	Expires        []string
	Location       []string
}

// DefaultLabels covers the wording shared by the major boards.
func DefaultLabels() Labels {
	return Labels{
		Representative: []string{"代表者", "代表取締役", "代表"},
		Establishment:  []string{"設立", "創業", "設立年月"},
		EmployeeCount:  []string{"従業員数", "社員数", "従業員"},
		Revenue:        []string{"売上高", "売上", "年商"},
		Industry:       []string{"業種", "事業内容", "事業概要"},
		Address:        []string{"本社所在地", "本社", "所在地", "住所"},
		Homepage:       []string{"企業ホームページ", "ホームページ", "企業URL", "HP", "URL"},
		Phone:          []string{"電話番号", "TEL", "連絡先"},
		Email:          []string{"メールアドレス", "E-mail", "Email"},
		Salary:         []string{"給与", "月給", "年収", "想定年収"},
		EmploymentType: []string{"雇用形態", "雇用区分"},
		Description:    []string{"仕事内容", "職務内容", "業務内容"},
		Expires:        []string{"掲載終了予定日", "掲載期間", "掲載終了日"},
		Location:       []string{"勤務地", "勤務地・交通"},
	}
}

// ApplyLabels fills empty fields of raw from sel. Fields a card already
// supplied are left alone, except that a longer detail salary wins.
func ApplyLabels(sel *goquery.Selection, find scrape.LabelFinder, l Labels, raw *model.RawListing) {
	if find == nil {
		find = scrape.FindLabel
	}
	fill := func(dst *string, labels []string) {
		if *dst != "" || len(labels) == 0 {
			return
		}
		*dst = find(sel, labels...)
	}

	fill(&raw.Representative, l.Representative)
	fill(&raw.Establishment, l.Establishment)
	fill(&raw.EmployeeCount, l.EmployeeCount)
	fill(&raw.Revenue, l.Revenue)
	fill(&raw.Industry, l.Industry)
	fill(&raw.EmploymentType, l.EmploymentType)
	fill(&raw.JobDescription, l.Description)
	fill(&raw.ExpiresText, l.Expires)

	if raw.Address == "" {
		raw.Address = normalize.Address(find(sel, l.Address...))
	}
	if raw.Address == "" {
		raw.Address = normalize.Address(find(sel, l.Location...))
	}
	if raw.Area == "" {
		raw.Area = normalize.Area(raw.Address)
	}

	if salary := find(sel, l.Salary...); len([]rune(salary)) > len([]rune(raw.SalaryText)) {
		raw.SalaryText = salary
	}
	if raw.Phone == "" {
		raw.Phone = normalize.Phone(find(sel, l.Phone...))
	}
	if raw.Email == "" {
		raw.Email = firstEmail(find(sel, l.Email...))
	}
	if raw.HomepageURL == "" {
		raw.HomepageURL = homepage(sel, find, l.Homepage)
	}
}

// homepage prefers a link inside the labelled cell, then any URL text.
func homepage(sel *goquery.Selection, find scrape.LabelFinder, labels []string) string {
	var href string
	sel.Find("dt, th").EachWithBreak(func(_ int, label *goquery.Selection) bool {
		text := normalize.Text(label.Text())
		for _, l := range labels {
			if text == l {
				href, _ = label.Next().Find("a[href^='http']").First().Attr("href")
				return href == ""
			}
		}
		return true
	})
	if href != "" {
		return cleanHomepage(href)
	}
	text := find(sel, labels...)
	for _, field := range strings.Fields(text) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return cleanHomepage(field)
		}
		if strings.HasPrefix(field, "www.") {
			return cleanHomepage("https://" + field)
		}
	}
	return ""
}

func cleanHomepage(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}

func firstEmail(text string) string {
	for _, field := range strings.Fields(normalize.Fold(text)) {
		field = strings.Trim(field, "<>()[]（）,、")
		if at := strings.Index(field, "@"); at > 0 && strings.Contains(field[at:], ".") {
			return strings.ToLower(field)
		}
	}
	return ""
}

// AbsURL resolves href against base, returning "" when either is invalid.
func AbsURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(r)
	abs.Fragment = ""
	return abs.String()
}
