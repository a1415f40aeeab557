package mynavi

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/rank"
	"github.com/sells-group/jobleads-cli/internal/source"
)

const listHTML = `<html><body><div id="searchResultList">
<div class="cassetteRecruit cassetteRecruit--attention">
  <h3 class="cassetteRecruit__name">株式会社サンプル | 本社：東京</h3>
  <p class="cassetteRecruit__copy"><a href="/jobinfo-123456-1-1-1/">法人営業（未経験歓迎）</a></p>
  <table class="tableCondition">
    <tr><th>勤務地</th><td>東京都港区芝公園1-1</td></tr>
    <tr><th>給与</th><td>月給25万円以上</td></tr>
  </table>
</div>
<div class="cassetteRecruit">
  <h3 class="cassetteRecruit__name">テスト工業株式会社</h3>
  <p class="cassetteRecruit__copy"><a href="/jobinfo-654321-1-1-1/">施工管理</a></p>
</div>
</div>
<ul class="pager"><li class="pager__next"><a href="/list/?keyword=%E5%96%B6%E6%A5%AD&pageNum=2">次へ</a></li></ul>
</body></html>`

const detailHTML = `<html><body>
<h1><span class="companyName">株式会社サンプル</span></h1>
<h2 class="occName">法人営業（未経験歓迎）</h2>
<table class="jobOfferTable">
  <tr><th>仕事内容</th><td>既存顧客への提案営業</td></tr>
  <tr><th>雇用形態</th><td>正社員</td></tr>
  <tr><th>掲載期間</th><td>2026/10/01～2026/11/30</td></tr>
</table>
<table class="companyTable">
  <tr><th>設立</th><td>2001年4月</td></tr>
  <tr><th>代表者</th><td>代表取締役 山田 太郎</td></tr>
  <tr><th>従業員数</th><td>120名</td></tr>
  <tr><th>本社所在地</th><td>〒105-0011 東京都港区芝公園1-1</td></tr>
  <tr><th>企業ホームページ</th><td><a href="https://www.sample.co.jp/">https://www.sample.co.jp/</a></td></tr>
</table>
</body></html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestParseCards(t *testing.T) {
	s := New()
	cards := s.ParseCards(doc(t, listHTML), BaseURL+"/list/?keyword=x")
	require.Len(t, cards, 2)

	assert.Equal(t, BaseURL+"/jobinfo-123456-1-1-1/", cards[0].DetailURL)
	assert.Equal(t, "株式会社サンプル", cards[0].CompanyName)
	assert.Equal(t, "法人営業(未経験歓迎)", cards[0].JobTitle)
	assert.Equal(t, "月給25万円以上", cards[0].SalaryText)
	assert.Equal(t, "東京都港区", cards[0].Area)
	assert.True(t, cards[0].Sponsored)
	assert.False(t, cards[1].Sponsored)
}

func TestNextPage(t *testing.T) {
	s := New()
	assert.Equal(t, BaseURL+"/list/?keyword=%E5%96%B6%E6%A5%AD&pageNum=2", s.NextPage(doc(t, listHTML), BaseURL+"/list/"))

	disabled := `<ul class="pager"><li class="pager__next is-disabled"><a href="/list/?pageNum=3">次へ</a></li></ul>`
	assert.Empty(t, s.NextPage(doc(t, disabled), BaseURL+"/list/"))
	assert.Empty(t, s.NextPage(doc(t, `<div></div>`), BaseURL+"/list/"))
}

func TestParseDetail(t *testing.T) {
	raw := &model.RawListing{CompanyName: "株式会社サンプル | 本社：東京"}
	New().ParseDetail(doc(t, detailHTML), raw)

	assert.Equal(t, "株式会社サンプル", raw.CompanyName)
	assert.Equal(t, "代表取締役 山田 太郎", raw.Representative)
	assert.Equal(t, "2001年4月", raw.Establishment)
	assert.Equal(t, "120名", raw.EmployeeCount)
	assert.Equal(t, "東京都港区芝公園1-1", raw.Address)
	assert.Equal(t, "東京都港区", raw.Area)
	assert.Equal(t, "https://www.sample.co.jp/", raw.HomepageURL)
	assert.Equal(t, "正社員", raw.EmploymentType)
	assert.Equal(t, "既存顧客への提案営業", raw.JobDescription)
	assert.Equal(t, "2026/10/01~2026/11/30", raw.ExpiresText)
}

func TestClassify(t *testing.T) {
	s := New()
	r, _ := s.Classify(rank.Signals{Sponsored: true, Position: 80, Page: 3})
	assert.Equal(t, model.RankA, r)
	r, _ = s.Classify(rank.Signals{Position: 45, Page: 1})
	assert.Equal(t, model.RankB, r, "whole first page is B")
	r, _ = s.Classify(rank.Signals{Position: 51, Page: 2})
	assert.Equal(t, model.RankC, r)
}

func TestSearchURL(t *testing.T) {
	s := New()
	assert.Equal(t, BaseURL+"/list/?area=%E6%9D%B1%E4%BA%AC&keyword=%E5%96%B6%E6%A5%AD",
		s.SearchURL(source.Params{Keyword: "営業", Location: "東京"}))
	assert.Equal(t, s.SearchURL(source.Params{Keyword: "株式会社サンプル"}), s.NameSearchURL("株式会社サンプル"))
	assert.Equal(t, model.SourceMynavi, s.Profile().ID)
}
