package enjapan

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/rank"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestParseCards(t *testing.T) {
	html := `<div class="list">
<div class="jobSearchListUnit">
  <a class="unitLink" href="/desc_1234567/?aroute=1">
    <span class="company"><span class="name">エンテスト株式会社</span></span>
    <span class="jobNameText">カスタマーサポート</span>
  </a>
  <dl><dt>給与</dt><dd>月給23万円～</dd></dl>
</div>
</div>
<a class="next disabled" href="?pagenum=2">次へ</a>`
	d := doc(t, html)
	s := New()
	cards := s.ParseCards(d, BaseURL+"/search/search_list/?keyword=x")
	require.Len(t, cards, 1)
	assert.Equal(t, BaseURL+"/desc_1234567/?aroute=1", cards[0].DetailURL)
	assert.Equal(t, "エンテスト株式会社", cards[0].CompanyName)
	assert.Equal(t, "カスタマーサポート", cards[0].JobTitle)
	assert.Equal(t, "月給23万円~", cards[0].SalaryText)
	assert.False(t, cards[0].Sponsored)

	assert.Empty(t, s.NextPage(d, BaseURL+"/search/search_list/"))
}

func TestClassify_PositionOnly(t *testing.T) {
	s := New()
	r, conf := s.Classify(rank.Signals{Position: 1, Page: 1})
	assert.Equal(t, model.RankB, r)
	assert.Equal(t, rank.ConfidencePosition, conf)
	r, _ = s.Classify(rank.Signals{Position: 21, Page: 1})
	assert.Equal(t, model.RankC, r)
}

func TestParseDetail(t *testing.T) {
	html := `<table class="companyTable">
<tr><th>設立</th><td>1998年</td></tr>
<tr><th>企業ホームページ</th><td><a href="https://en-test.co.jp/#top">https://en-test.co.jp/</a></td></tr>
</table>`
	raw := &model.RawListing{CompanyName: "エンテスト株式会社"}
	New().ParseDetail(doc(t, html), raw)
	assert.Equal(t, "エンテスト株式会社", raw.CompanyName)
	assert.Equal(t, "1998年", raw.Establishment)
	assert.Equal(t, "https://en-test.co.jp/", raw.HomepageURL)
}
