package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindPhone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"full width labeled", "TEL：０３－１２３４－５６７８ FAX：03-1234-5679", "03-1234-5678"},
		{"fax listed first", "FAX 03-1111-2222 / TEL 03-3333-4444", "03-3333-4444"},
		{"toll free wins", "本社 03-1234-5678 フリーダイヤル 0120-123-456", "0120-123-456"},
		{"navi dial filtered", "ナビダイヤル 0570-000-123 TEL 06-6123-4567", "06-6123-4567"},
		{"no keyword", "本社 045-123-4567", "045-123-4567"},
		{"only fax", "FAX: 03-1234-5679", "03-1234-5679"},
		{"bare digits", "電話 0312345678", "0312345678"},
		{"parenthesized", "TEL (03) 1234-5678", "03-1234-5678"},
		{"long vowel dash", "TEL 03ー1234ー5678", "03-1234-5678"},
		{"nothing", "創業 1998年 資本金 1,000万円", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findPhone(tt.text))
		})
	}
}

func TestRankPhones_Empty(t *testing.T) {
	assert.Empty(t, rankPhones("", nil))
}

func TestAround(t *testing.T) {
	text := "あいうえお03-1234-5678かきくけこ"
	start := len("あいうえお")
	end := start + len("03-1234-5678")
	assert.Equal(t, "えお03-1234-5678かき", around(text, start, end, 2))
	assert.Equal(t, text, around(text, start, end, 100))
}
