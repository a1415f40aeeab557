package rikunabi

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/source"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

const listHTML = `<ul class="rnn-jobOfferList">
<li class="rnn-jobOfferList__item">
  <h2 class="rnn-jobOfferList__item__title"><a href="/company/cmi0100000001/nx1_rq0012345678/">ITコンサルタント</a></h2>
  <p class="rnn-jobOfferList__item__company__text">リクナビテスト株式会社</p>
  <table><tr><th>給与</th><td>年収500万円以上</td></tr><tr><th>勤務地</th><td>福岡県福岡市中央区天神</td></tr></table>
</li>
<li class="rnn-jobOfferList__item">
  <h2 class="rnn-jobOfferList__item__title"><a href="/company/cmi0100000002/nx2_rq0087654321/">事務</a></h2>
  <p class="rnn-jobOfferList__item__company__text">スタンダード株式会社</p>
</li>
</ul>
<div class="rnn-pagination"><span class="rnn-pagination__next"><a href="/lst/?fw=IT&pn=2">次へ</a></span></div>`

func TestParseCards(t *testing.T) {
	cards := New().ParseCards(doc(t, listHTML), BaseURL+"/lst/?fw=IT")
	require.Len(t, cards, 2)

	assert.Equal(t, BaseURL+"/company/cmi0100000001/nx1_rq0012345678/", cards[0].DetailURL)
	assert.Equal(t, "リクナビテスト株式会社", cards[0].CompanyName)
	assert.Equal(t, "ITコンサルタント", cards[0].JobTitle)
	assert.Equal(t, "年収500万円以上", cards[0].SalaryText)
	assert.Equal(t, "福岡県福岡市中央区", cards[0].Area)
	assert.True(t, cards[0].Sponsored)
	assert.False(t, cards[1].Sponsored)
}

func TestPremium(t *testing.T) {
	assert.True(t, Premium("https://next.rikunabi.com/company/cmi1/nx1_rq1/"))
	assert.False(t, Premium("https://next.rikunabi.com/company/cmi1/nx2_rq1/"))
	assert.False(t, Premium("https://next.rikunabi.com/lst/?fw=nx1_"))
	assert.False(t, Premium("::bad"))
}

func TestNextPage(t *testing.T) {
	s := New()
	assert.Equal(t, BaseURL+"/lst/?fw=IT&pn=2", s.NextPage(doc(t, listHTML), BaseURL+"/lst/?fw=IT"))

	last := `<span class="rnn-pagination__next is-disabled"><a href="/lst/?fw=IT&pn=3">次へ</a></span>`
	assert.Empty(t, s.NextPage(doc(t, last), BaseURL+"/lst/?fw=IT"))
}

func TestParseDetail(t *testing.T) {
	html := `<h1 class="rnn-companyName">リクナビテスト株式会社</h1>
<table class="rnn-detailTable">
  <tr><th>代表者</th><td>田中 次郎</td></tr>
  <tr><th>電話番号</th><td>092-123-4567（採用担当）</td></tr>
  <tr><th>事業内容</th><td>ITコンサルティング</td></tr>
</table>`
	raw := &model.RawListing{JobTitle: "ITコンサルタント"}
	New().ParseDetail(doc(t, html), raw)

	assert.Equal(t, "リクナビテスト株式会社", raw.CompanyName)
	assert.Equal(t, "田中 次郎", raw.Representative)
	assert.Equal(t, "092-123-4567", raw.Phone)
	assert.Equal(t, "ITコンサルティング", raw.Industry)
	assert.Equal(t, "ITコンサルタント", raw.JobTitle)
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, BaseURL+"/lst/?fw=IT", New().SearchURL(source.Params{Keyword: "IT"}))
}
