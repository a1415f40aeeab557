package scrape

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc.Selection
}

func TestFindLabel_DefinitionList(t *testing.T) {
	doc := parse(t, `<dl>
		<dt>代表者</dt><dd>山田 太郎</dd>
		<dt>本社所在地</dt><dd>〒100-0005<br>東京都千代田区丸の内１－１</dd>
	</dl>`)
	assert.Equal(t, "山田 太郎", FindLabel(doc, "代表者"))
	assert.Equal(t, "〒100-0005\n東京都千代田区丸の内1-1", FindLabel(doc, "所在地"))
}

func TestFindLabel_Table(t *testing.T) {
	doc := parse(t, `<table>
		<tr><th>設立</th><td>1999年4月</td></tr>
		<tr><th>従業員数</th><td>120名（2024年4月現在）</td></tr>
	</table>`)
	assert.Equal(t, "1999年4月", FindLabel(doc, "設立"))
	assert.Equal(t, "120名(2024年4月現在)", FindLabel(doc, "従業員数"))
}

func TestFindLabel_Inline(t *testing.T) {
	doc := parse(t, `<div><p>【売上高】：12億円</p><p>TEL: 03-1234-5678</p></div>`)
	assert.Equal(t, "12億円", FindLabel(doc, "売上高"))
	assert.Equal(t, "03-1234-5678", FindLabel(doc, "TEL"))
}

func TestFindLabel_Priority(t *testing.T) {
	// dt/dd wins over th/td, which wins over inline text.
	doc := parse(t, `
		<p>設立：2010年</p>
		<table><tr><th>設立</th><td>2005年</td></tr></table>
		<dl><dt>設立</dt><dd>2001年</dd></dl>`)
	assert.Equal(t, "2001年", FindLabel(doc, "設立"))

	doc = parse(t, `
		<p>設立：2010年</p>
		<table><tr><th>設立</th><td>2005年</td></tr></table>`)
	assert.Equal(t, "2005年", FindLabel(doc, "設立"))
}

func TestFindLabel_LabelOrder(t *testing.T) {
	doc := parse(t, `<dl><dt>所在地</dt><dd>大阪府</dd><dt>本社所在地</dt><dd>東京都</dd></dl>`)
	assert.Equal(t, "東京都", FindLabel(doc, "本社所在地", "所在地"))
}

func TestFindLabel_Miss(t *testing.T) {
	doc := parse(t, `<dl><dt>事業内容</dt><dd>ソフトウェア開発</dd></dl>`)
	assert.Equal(t, "", FindLabel(doc, "資本金"))
	// A long cell that merely mentions the label is not a label cell.
	doc = parse(t, `<table><tr><th>当社の代表者からのメッセージとビジョンについて</th><td>x</td></tr></table>`)
	assert.Equal(t, "", FindLabel(doc, "代表者"))
}

func TestBlockText(t *testing.T) {
	doc := parse(t, `<div>会社名<br>株式会社サンプル<script>var x=1;</script><p>ＴＥＬ　０３</p></div>`)
	assert.Equal(t, "会社名\n株式会社サンプル\nTEL 03", BlockText(doc.Find("div")))
}
