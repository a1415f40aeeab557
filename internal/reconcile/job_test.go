package reconcile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
)

func i64(v int64) *int64 { return &v }

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Salary
	}{
		{"monthly range", "月給25万円〜40万円", Salary{i64(250000), i64(400000), model.SalaryUnitMonthly}},
		{"annual floor", "年収400万円以上", Salary{i64(4000000), nil, model.SalaryUnitAnnual}},
		{"unit on upper bound only", "年収350~600万円（経験・能力を考慮）", Salary{i64(3500000), i64(6000000), model.SalaryUnitAnnual}},
		{"hourly with comma", "時給1,200円以上", Salary{i64(1200), nil, model.SalaryUnitHourly}},
		{"full width digits", "月給２５．５万円～", Salary{i64(255000), nil, model.SalaryUnitMonthly}},
		{"katakana dash range", "月給22万円ー30万円", Salary{i64(220000), i64(300000), model.SalaryUnitMonthly}},
		{"marker after noise", "※経験による 年俸500万円〜", Salary{i64(5000000), nil, model.SalaryUnitAnnual}},
		{"unlabeled annual", "450万円〜700万円", Salary{i64(4500000), i64(7000000), model.SalaryUnitAnnual}},
		{"inverted range drops max", "月給30万円〜20万円", Salary{i64(300000), nil, model.SalaryUnitMonthly}},
		{"no amount", "経験・能力を考慮の上決定", Salary{}},
		{"empty", "", Salary{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSalary(tt.in))
		})
	}
}

func TestParseEmploymentType(t *testing.T) {
	assert.Equal(t, model.EmploymentFullTime, ParseEmploymentType("正社員"))
	assert.Equal(t, model.EmploymentFullTime, ParseEmploymentType("正社員（試用期間は契約社員）"))
	assert.Equal(t, model.EmploymentContract, ParseEmploymentType("契約社員（正社員登用あり）"))
	assert.Equal(t, model.EmploymentTemporary, ParseEmploymentType("紹介予定派遣"))
	assert.Equal(t, model.EmploymentPartTime, ParseEmploymentType("アルバイト・パート"))
	assert.Equal(t, model.EmploymentFreelance, ParseEmploymentType("業務委託"))
	assert.Equal(t, model.EmploymentUnknown, ParseEmploymentType("その他"))
}

func TestSourceJobID(t *testing.T) {
	assert.Equal(t, "123456", SourceJobID(model.SourceMynavi, "https://tenshoku.mynavi.jp/jobinfo-123456-1-1-1/"))
	assert.Equal(t, "3001", SourceJobID(model.SourceDoda, "https://doda.jp/DodaFront/View/JobSearchDetail/j_jid__3001/"))
	assert.Equal(t, "rq0012345678", SourceJobID(model.SourceRikunabi, "https://next.rikunabi.com/company/cmi0100000001/nx1_rq0012345678/"))
	assert.Equal(t, "1234567", SourceJobID(model.SourceEnJapan, "https://employment.en-japan.com/desc_1234567/?aroute=1"))

	a := SourceJobID(model.SourceDoda, "https://doda.jp/other/path/?utm=1")
	b := SourceJobID(model.SourceDoda, "https://doda.jp/other/path/#top")
	assert.True(t, strings.HasPrefix(a, "h"))
	assert.Len(t, a, 17)
	assert.Equal(t, a, b, "query and fragment do not change the fallback id")
	assert.NotEqual(t, a, SourceJobID(model.SourceDoda, "https://doda.jp/other/path2/"))
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

	got := ParseExpiry("2026/10/01~2026/11/30", now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 11, 30, 23, 59, 59, 0, JST), *got)

	got = ParseExpiry("掲載終了予定日：２０２６年１２月５日（土）", now)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, 12, 5, 23, 59, 59, 0, JST), *got)

	got = ParseExpiry("11月30日まで", now)
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())

	got = ParseExpiry("1月10日まで", now)
	require.NotNil(t, got)
	assert.Equal(t, 2027, got.Year(), "a month already past rolls into next year")

	assert.Nil(t, ParseExpiry("2026/02/30", now))
	assert.Nil(t, ParseExpiry("", now))
	assert.Nil(t, ParseExpiry("随時", now))
}

func TestTranslateJob(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	raw := &model.RawListing{
		Source:         model.SourceMynavi,
		DetailURL:      "https://tenshoku.mynavi.jp/jobinfo-123456-1-1-1/",
		CompanyName:    "株式会社サンプル",
		JobTitle:       "法人営業",
		SalaryText:     "月給25万円〜40万円",
		EmploymentType: "正社員",
		JobDescription: "提案営業",
		Area:           "東京都港区",
		Address:        "東京都港区芝1-1-1",
		ExpiresText:    "2026/10/01~2026/11/30",
	}
	job := TranslateJob(raw, now)
	assert.Equal(t, "123456", job.SourceJobID)
	assert.Equal(t, raw.DetailURL, job.SourceURL)
	assert.Equal(t, "東京都港区", job.Location)
	assert.Equal(t, model.EmploymentFullTime, job.EmploymentType)
	assert.Equal(t, model.SalaryUnitMonthly, job.SalaryUnit)
	assert.True(t, job.IsActive)
	assert.Equal(t, now, job.FirstSeenAt)

	raw.ExpiresText = "2026/09/30"
	raw.Area = ""
	job = TranslateJob(raw, now)
	assert.False(t, job.IsActive, "a listing past its end date is inactive")
	assert.Equal(t, "東京都港区芝1-1-1", job.Location)
}

func TestJobChanged(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	raw := &model.RawListing{
		Source:     model.SourceDoda,
		DetailURL:  "https://doda.jp/DodaFront/View/JobSearchDetail/j_jid__1/",
		JobTitle:   "経理",
		SalaryText: "年収400万円〜",
	}
	a := TranslateJob(raw, now)
	b := TranslateJob(raw, now.Add(24*time.Hour))
	assert.False(t, jobChanged(a, b), "timestamps alone are not a change")

	raw.SalaryText = "年収450万円〜"
	assert.True(t, jobChanged(a, TranslateJob(raw, now)))

	c := TranslateJob(raw, now)
	c.Location = "大阪府大阪市北区"
	assert.True(t, jobChanged(TranslateJob(raw, now), c))
}
