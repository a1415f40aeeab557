package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "03-1234-5678", Fold("０３－１２３４－５６７８"))
	assert.Equal(t, "ABC", Fold("ＡＢＣ"))
	assert.Equal(t, "カタカナ", Fold("ｶﾀｶﾅ"))
}

func TestText(t *testing.T) {
	assert.Equal(t, "営業 職", Text("  営業　\n 職 "))
}

func TestAddress(t *testing.T) {
	got := Address("〒100-0005　東京都千代田区丸の内１－１　地図を見る")
	assert.Equal(t, "東京都千代田区丸の内1-1", got)
}

func TestPrefecture(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"東京都千代田区丸の内1-1", "東京都"},
		{"大阪府大阪市北区梅田", "大阪府"},
		{"北海道札幌市中央区", "北海道"},
		{"勤務地：大阪（梅田駅徒歩5分）", "大阪府"},
		{"京都市下京区", "京都府"},
		{"本社：神奈川県横浜市 / 支社：東京都港区", "神奈川県"},
		{"リモート勤務", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Prefecture(tt.in))
		})
	}
}

func TestArea(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"東京都千代田区丸の内1-1", "東京都千代田区"},
		{"〒530-0001 大阪府大阪市北区梅田1-2-3", "大阪府大阪市北区"},
		{"神奈川県川崎市中原区小杉町", "神奈川県川崎市中原区"},
		{"愛知県豊田市トヨタ町1", "愛知県豊田市"},
		{"沖縄県", "沖縄県"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Area(tt.in))
		})
	}
}

func TestCompanyKey(t *testing.T) {
	assert.Equal(t, "サンプル", CompanyKey("株式会社 サンプル"))
	assert.Equal(t, "サンプル", CompanyKey("㈱サンプル"))
	assert.Equal(t, "サンプル", CompanyKey("（株）サンプル"))
	assert.Equal(t, "acme", CompanyKey("ACME Co., Ltd."))
	assert.Equal(t, "", CompanyKey("株式会社"))
}

func TestSameCompany(t *testing.T) {
	assert.True(t, SameCompany("株式会社サンプル", "サンプル"))
	assert.True(t, SameCompany("サンプル", "株式会社サンプルホールディングス"))
	assert.True(t, SameCompany("ＡＣＭＥ株式会社", "acme"))
	assert.False(t, SameCompany("株式会社サンプル", "株式会社テスト"))
	assert.False(t, SameCompany("株式会社", "有限会社"))
}

func TestPhone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"03-1234-5678", "03-1234-5678"},
		{"ＴＥＬ：０３－１２３４－５６７８（代表）", "03-1234-5678"},
		{"(06) 6123-4567", "06-6123-4567"},
		{"0120ー123ー456", "0120-123-456"},
		{"09012345678", "09012345678"},
		{"設立 2010年4月", ""},
		{"内線 123", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Phone(tt.in), tt.in)
	}
}
