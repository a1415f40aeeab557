package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRankOrdinal(t *testing.T) {
	assert.Equal(t, 3, RankA.Ordinal())
	assert.Equal(t, 2, RankB.Ordinal())
	assert.Equal(t, 1, RankC.Ordinal())
	assert.Equal(t, 0, RankNone.Ordinal())
	assert.Equal(t, 0, Rank("S").Ordinal())
}

func TestParseRank(t *testing.T) {
	assert.Equal(t, RankA, ParseRank("A"))
	assert.Equal(t, RankNone, ParseRank("a"))
	assert.Equal(t, RankNone, ParseRank(""))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		found, errs int
		want        LogStatus
	}{
		{3, 0, LogStatusSuccess},
		{10, 5, LogStatusSuccess},
		{10, 6, LogStatusPartial},
		{0, 0, LogStatusSuccess},
		{0, 1, LogStatusPartial},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.found, tt.errs), "found=%d errors=%d", tt.found, tt.errs)
	}
}

func TestLeadUpdate_IsEmpty(t *testing.T) {
	assert.True(t, LeadUpdate{}.IsEmpty())
	phone := "03-1111-2222"
	assert.False(t, LeadUpdate{Phone: &phone}.IsEmpty())
	assert.False(t, LeadUpdate{IncrementUpdateCount: true}.IsEmpty())
}

func TestLeadFromRaw(t *testing.T) {
	raw := RawListing{
		Source:       SourceDoda,
		DetailURL:    "https://doda.jp/DodaFront/View/JobSearchDetail/j_jid__3008123456/",
		CompanyName:  "株式会社サンプル",
		Phone:        "03-1234-5678",
		BudgetRank:   RankA,
		ScrapeStatus: ScrapeStatusStep1,
	}
	lead := LeadFromRaw(raw)
	assert.Equal(t, raw.DetailURL, lead.URL)
	assert.Equal(t, SourceDoda, lead.Source)
	assert.Equal(t, "03-1234-5678", lead.Phone)
	assert.Equal(t, RankA, lead.BudgetRank)
	assert.Equal(t, ScrapeStatusStep1, lead.ScrapeStatus)
}
