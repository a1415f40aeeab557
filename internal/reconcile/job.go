package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/normalize"
)

// JST is the zone job-board dates are published in.
var JST = time.FixedZone("JST", 9*60*60)

// jobIDPatterns extract the board's own listing id from a detail URL. The
// first capture group is the id.
var jobIDPatterns = map[model.Source]*regexp.Regexp{
	model.SourceMynavi:   regexp.MustCompile(`/jobinfo-(\d+)`),
	model.SourceDoda:     regexp.MustCompile(`j_jid__(\d+)`),
	model.SourceRikunabi: regexp.MustCompile(`(rq\d+)`),
	model.SourceEnJapan:  regexp.MustCompile(`desc_(\d+)`),
}

// SourceJobID returns the board listing id embedded in detailURL. When the
// URL carries none it falls back to a stable hash of the URL without its
// query and fragment.
func SourceJobID(src model.Source, detailURL string) string {
	if re, ok := jobIDPatterns[src]; ok {
		if m := re.FindStringSubmatch(detailURL); m != nil {
			return m[1]
		}
	}
	key := detailURL
	if u, err := url.Parse(detailURL); err == nil {
		u.RawQuery, u.Fragment = "", ""
		key = u.String()
	}
	sum := sha256.Sum256([]byte(key))
	return "h" + hex.EncodeToString(sum[:8])
}

var (
	salaryUnits = []struct {
		markers []string
		unit    model.SalaryUnit
	}{
		{[]string{"年収", "年俸"}, model.SalaryUnitAnnual},
		{[]string{"月給", "月収", "月額", "月例"}, model.SalaryUnitMonthly},
		{[]string{"時給"}, model.SalaryUnitHourly},
		{[]string{"日給", "日額"}, model.SalaryUnitDaily},
	}
	salaryRangeRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(万円|万|円)?\s*[〜~\-]\s*(\d+(?:\.\d+)?)\s*(万円|万|円)`)
	salarySingleRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(万円|万|円)`)
)

// Salary is a parsed salary. Nil bounds were not stated.
type Salary struct {
	Min  *int64
	Max  *int64
	Unit model.SalaryUnit
}

// ParseSalary extracts yen bounds and the pay period from free salary text
// such as "月給25万円〜40万円" or "年収400万円以上". Amounts in 万 are scaled
// to yen. A range that only marks its upper bound ("25〜40万円") applies that
// unit to both ends.
func ParseSalary(text string) Salary {
	s := normalize.Dashes(text)
	s = strings.NewReplacer(",", "", "〜", "~", "～", "~").Replace(s)

	var out Salary
	first := -1
	for _, u := range salaryUnits {
		for _, m := range u.markers {
			if i := strings.Index(s, m); i >= 0 && (first < 0 || i < first) {
				first, out.Unit = i, u.unit
			}
		}
	}
	if first > 0 {
		s = s[first:]
	}

	if m := salaryRangeRe.FindStringSubmatch(s); m != nil {
		lowUnit := m[2]
		if lowUnit == "" {
			lowUnit = m[4]
		}
		out.Min = yen(m[1], lowUnit)
		out.Max = yen(m[3], m[4])
	} else if m := salarySingleRe.FindStringSubmatch(s); m != nil {
		out.Min = yen(m[1], m[2])
	}
	if out.Min != nil && out.Max != nil && *out.Max < *out.Min {
		out.Max = nil
	}
	if out.Unit == model.SalaryUnitNone && out.Min != nil {
		out.Unit = inferUnit(*out.Min)
	}
	return out
}

func yen(num, unit string) *int64 {
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || f <= 0 {
		return nil
	}
	if strings.HasPrefix(unit, "万") {
		f *= 10000
	}
	v := int64(math.Round(f))
	return &v
}

// inferUnit guesses the period of an unlabeled amount from its size.
func inferUnit(v int64) model.SalaryUnit {
	switch {
	case v >= 2_000_000:
		return model.SalaryUnitAnnual
	case v >= 100_000:
		return model.SalaryUnitMonthly
	case v < 10_000:
		return model.SalaryUnitHourly
	default:
		return model.SalaryUnitDaily
	}
}

var employmentTerms = []struct {
	term string
	typ  model.EmploymentType
}{
	{"正社員", model.EmploymentFullTime},
	{"正職員", model.EmploymentFullTime},
	{"契約社員", model.EmploymentContract},
	{"契約職員", model.EmploymentContract},
	{"嘱託", model.EmploymentContract},
	{"派遣", model.EmploymentTemporary},
	{"紹介予定派遣", model.EmploymentTemporary},
	{"アルバイト", model.EmploymentPartTime},
	{"パート", model.EmploymentPartTime},
	{"業務委託", model.EmploymentFreelance},
	{"フリーランス", model.EmploymentFreelance},
}

// ParseEmploymentType maps the board's wording to an EmploymentType. The
// earliest term in the text wins, so "正社員（契約社員スタート）" is full time.
func ParseEmploymentType(text string) model.EmploymentType {
	typ, at := model.EmploymentUnknown, -1
	for _, e := range employmentTerms {
		if i := strings.Index(text, e.term); i >= 0 && (at < 0 || i < at) {
			typ, at = e.typ, i
		}
	}
	return typ
}

var (
	fullDateRe = regexp.MustCompile(`(\d{4})\s*[年/.\-]\s*(\d{1,2})\s*[月/.\-]\s*(\d{1,2})`)
	monthDayRe = regexp.MustCompile(`(\d{1,2})\s*[月/]\s*(\d{1,2})\s*日?`)
)

// ParseExpiry returns the end of the listing period described by text, as
// the last moment of that day in JST. For a period ("2026/10/01~2026/11/30")
// the last date is used. A date without a year is placed on or after now.
func ParseExpiry(text string, now time.Time) *time.Time {
	s := normalize.Dashes(text)
	if all := fullDateRe.FindAllStringSubmatch(s, -1); len(all) > 0 {
		m := all[len(all)-1]
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		return endOfDay(y, mo, d)
	}
	if all := monthDayRe.FindAllStringSubmatch(s, -1); len(all) > 0 {
		m := all[len(all)-1]
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		local := now.In(JST)
		y := local.Year()
		if t := endOfDay(y, mo, d); t != nil && t.Before(local.AddDate(0, 0, -1)) {
			y++
		}
		return endOfDay(y, mo, d)
	}
	return nil
}

func endOfDay(y, mo, d int) *time.Time {
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return nil
	}
	t := time.Date(y, time.Month(mo), d, 23, 59, 59, 0, JST)
	if t.Month() != time.Month(mo) {
		return nil
	}
	return &t
}

// TranslateJob derives the normalized job row for raw as seen at now.
func TranslateJob(raw *model.RawListing, now time.Time) *model.NormalizedJob {
	sal := ParseSalary(raw.SalaryText)
	loc := raw.Area
	if loc == "" {
		loc = raw.Address
	}
	job := &model.NormalizedJob{
		Source:         raw.Source,
		SourceJobID:    SourceJobID(raw.Source, raw.DetailURL),
		SourceURL:      raw.DetailURL,
		CompanyName:    raw.CompanyName,
		Title:          raw.JobTitle,
		SalaryText:     raw.SalaryText,
		SalaryMin:      sal.Min,
		SalaryMax:      sal.Max,
		SalaryUnit:     sal.Unit,
		EmploymentType: ParseEmploymentType(raw.EmploymentType),
		Description:    raw.JobDescription,
		Location:       loc,
		DateExpires:    ParseExpiry(raw.ExpiresText, now),
		IsActive:       true,
		FirstSeenAt:    now,
		LastCheckedAt:  now,
		UpdatedAt:      now,
	}
	if job.DateExpires != nil && job.DateExpires.Before(now) {
		job.IsActive = false
	}
	return job
}

// jobChanged reports whether fresh differs from stored in any field that
// matters to a reader of the listing.
func jobChanged(stored, fresh *model.NormalizedJob) bool {
	return stored.Title != fresh.Title ||
		stored.SalaryText != fresh.SalaryText ||
		!sameInt(stored.SalaryMin, fresh.SalaryMin) ||
		!sameInt(stored.SalaryMax, fresh.SalaryMax) ||
		stored.Description != fresh.Description ||
		!sameTime(stored.DateExpires, fresh.DateExpires) ||
		stored.IsActive != fresh.IsActive ||
		stored.EmploymentType != fresh.EmploymentType ||
		stored.Location != fresh.Location
}

func sameInt(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
