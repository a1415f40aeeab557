package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
)

func testLead(url string) *model.Lead {
	return &model.Lead{
		URL:         url,
		Source:      model.SourceMynavi,
		CompanyName: "株式会社サンプル",
		JobTitle:    "法人営業",
		SalaryText:  "月給25万円以上",
		Industry:    "IT",
		Area:        "東京都港区",
	}
}

func ptr[T any](v T) *T { return &v }

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertThenUpdate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://tenshoku.mynavi.jp/jobinfo-1/")
		l.Phone = "03-1111-2222"
		isNew, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NotZero(t, l.ID)

		again := testLead(l.URL)
		again.CompanyName = "株式会社サンプルHD"
		again.Phone = "03-9999-0000"
		again.Revenue = "10億円"
		isNew, err = s.SafeUpsert(ctx, again)
		require.NoError(t, err)
		assert.False(t, isNew)
		assert.Equal(t, l.ID, again.ID)

		got, err := s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, "03-1111-2222", got.Phone, "protected phone must survive a re-scrape")
		assert.Equal(t, "株式会社サンプルHD", got.CompanyName)
		assert.Equal(t, "10億円", got.Revenue)
		assert.Equal(t, model.LeadStatusNew, got.Status)
		assert.Equal(t, model.ScrapeStatusStep1, got.ScrapeStatus)
		require.NotNil(t, got.LastSeenAt)
	})

	t.Run("EmptyFreshValuesNeverClear", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://doda.jp/j1")
		l.Phone = "03-1111-2222"
		l.Email = "info@example.jp"
		l.ContactFormURL = "https://example.jp/contact/"
		_, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)

		_, err = s.SafeUpsert(ctx, &model.Lead{URL: l.URL, Source: model.SourceDoda})
		require.NoError(t, err)

		got, err := s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, "株式会社サンプル", got.CompanyName)
		assert.Equal(t, "03-1111-2222", got.Phone)
		assert.Equal(t, "info@example.jp", got.Email)
		assert.Equal(t, "https://example.jp/contact/", got.ContactFormURL)
		assert.Equal(t, model.SourceDoda, got.Source)
	})

	t.Run("FillsEmptyProtectedFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://doda.jp/j2")
		_, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)

		fresh := testLead(l.URL)
		fresh.Phone = "06-6123-4567"
		fresh.JobDescription = "提案営業"
		_, err = s.SafeUpsert(ctx, fresh)
		require.NoError(t, err)

		got, err := s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, "06-6123-4567", got.Phone)
		assert.Equal(t, "提案営業", got.JobDescription)
	})

	t.Run("RankOverwrittenOnlyWhenPresent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://next.rikunabi.com/company/c1/nx2_r1/")
		l.BudgetRank = model.RankB
		l.RankConfidence = 0.6
		_, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)

		got, err := s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, model.RankB, got.BudgetRank)
		require.NotNil(t, got.RankDetectedAt)

		_, err = s.SafeUpsert(ctx, testLead(l.URL))
		require.NoError(t, err)
		got, err = s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, model.RankB, got.BudgetRank)
		assert.InDelta(t, 0.6, got.RankConfidence, 0.001)

		up := testLead(l.URL)
		up.BudgetRank = model.RankA
		up.RankConfidence = 0.9
		_, err = s.SafeUpsert(ctx, up)
		require.NoError(t, err)
		got, err = s.GetByURL(ctx, l.URL)
		require.NoError(t, err)
		assert.Equal(t, model.RankA, got.BudgetRank)
		assert.InDelta(t, 0.9, got.RankConfidence, 0.001)
	})

	t.Run("OperatorFieldsAndStatusSurvive", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://doda.jp/j3")
		_, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)

		require.NoError(t, s.Update(ctx, l.ID, model.LeadUpdate{
			Status:       ptr(model.LeadStatusContacted),
			Note:         ptr("call back Monday"),
			AISummary:    ptr("SaaS vendor"),
			AITags:       []string{"saas", "b2b"},
			ScrapeStatus: ptr(model.ScrapeStatusStep2),
		}))

		_, err = s.SafeUpsert(ctx, testLead(l.URL))
		require.NoError(t, err)

		got, err := s.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.LeadStatusContacted, got.Status)
		assert.Equal(t, "call back Monday", got.Note)
		assert.Equal(t, "SaaS vendor", got.AISummary)
		assert.Equal(t, []string{"saas", "b2b"}, got.AITags)
		assert.Equal(t, model.ScrapeStatusStep2, got.ScrapeStatus, "scrape status never regresses")
	})

	t.Run("DedupUniqueness", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			_, err := s.SafeUpsert(ctx, testLead("https://doda.jp/same"))
			require.NoError(t, err)
		}
		leads, err := s.List(ctx, LeadFilter{})
		require.NoError(t, err)
		assert.Len(t, leads, 1)

		ok, err := s.Exists(ctx, "https://doda.jp/same")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.Exists(ctx, "https://doda.jp/other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Batch", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.SafeUpsert(ctx, testLead("https://a.example/1"))
		require.NoError(t, err)

		second := *testLead("https://a.example/2")
		second.CompanyName = "later wins"
		res, err := s.SafeUpsertBatch(ctx, []model.Lead{
			*testLead("https://a.example/1"),
			*testLead("https://a.example/2"),
			second,
			*testLead("https://a.example/3"),
		})
		require.NoError(t, err)
		assert.Equal(t, BatchResult{New: 2, Updated: 1}, res)

		got, err := s.GetByURL(ctx, "https://a.example/2")
		require.NoError(t, err)
		assert.Equal(t, "later wins", got.CompanyName)

		res, err = s.SafeUpsertBatch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, BatchResult{}, res)
	})

	t.Run("BatchRollsBackOnError", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.SafeUpsertBatch(ctx, []model.Lead{*testLead("https://a.example/ok"), {}})
		require.Error(t, err)

		ok, err := s.Exists(ctx, "https://a.example/ok")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateRefreshFields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		l := testLead("https://doda.jp/j4")
		_, err := s.SafeUpsert(ctx, l)
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, s.Update(ctx, l.ID, model.LeadUpdate{
			BudgetRank:           ptr(model.RankA),
			LastRank:             ptr(model.RankC),
			JobCount:             ptr(3),
			ListingStatus:        ptr(model.ListingStatusActive),
			LatestJobTitle:       ptr("施工管理"),
			LastUpdatedAt:        &now,
			IncrementUpdateCount: true,
		}))
		require.NoError(t, s.Update(ctx, l.ID, model.LeadUpdate{IncrementUpdateCount: true}))
		require.NoError(t, s.Update(ctx, l.ID, model.LeadUpdate{}))

		got, err := s.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RankA, got.BudgetRank)
		assert.Equal(t, model.RankC, got.LastRank)
		assert.Equal(t, 3, got.JobCount)
		assert.Equal(t, model.ListingStatusActive, got.ListingStatus)
		assert.Equal(t, "施工管理", got.LatestJobTitle)
		assert.Equal(t, 2, got.UpdateCount)
		require.NotNil(t, got.LastUpdatedAt)
		assert.WithinDuration(t, now, *got.LastUpdatedAt, time.Second)

		err = s.Update(ctx, 9999, model.LeadUpdate{JobCount: ptr(1)})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ListFilters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := testLead("https://a.example/1")
		a.Phone = "03-1111-2222"
		a.HomepageURL = "https://a.example"
		b := testLead("https://b.example/1")
		b.Source = model.SourceDoda
		b.CompanyName = "テスト工業株式会社"
		b.BudgetRank = model.RankA
		for _, l := range []*model.Lead{a, b} {
			_, err := s.SafeUpsert(ctx, l)
			require.NoError(t, err)
		}

		got, err := s.List(ctx, LeadFilter{Source: model.SourceDoda})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.URL, got[0].URL)

		got, err = s.List(ctx, LeadFilter{MissingPhone: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.URL, got[0].URL)

		got, err = s.List(ctx, LeadFilter{HasHomepage: true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, a.URL, got[0].URL)

		got, err = s.List(ctx, LeadFilter{Search: "工業"})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = s.List(ctx, LeadFilter{Rank: model.RankA})
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = s.List(ctx, LeadFilter{IDs: []int64{a.ID, b.ID}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, b.ID, got[0].ID, "newest first")
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []int64
		for _, u := range []string{"https://d.example/1", "https://d.example/2", "https://d.example/3"} {
			l := testLead(u)
			_, err := s.SafeUpsert(ctx, l)
			require.NoError(t, err)
			ids = append(ids, l.ID)
		}

		require.NoError(t, s.Delete(ctx, ids[0]))
		assert.True(t, errors.Is(s.Delete(ctx, ids[0]), ErrNotFound))

		n, err := s.DeleteMany(ctx, ids)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = s.GetByID(ctx, ids[1])
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Jobs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		now := time.Now().UTC()
		salaryMin := int64(250000)
		j := &model.NormalizedJob{
			Source:        model.SourceMynavi,
			SourceJobID:   "123456",
			SourceURL:     "https://tenshoku.mynavi.jp/jobinfo-123456-1-1-1/",
			CompanyName:   "株式会社サンプル",
			Title:         "法人営業",
			SalaryMin:     &salaryMin,
			SalaryUnit:    model.SalaryUnitMonthly,
			IsActive:      true,
			FirstSeenAt:   now,
			LastCheckedAt: now,
			UpdatedAt:     now,
		}
		require.NoError(t, s.InsertJob(ctx, j))
		assert.NotZero(t, j.ID)

		got, err := s.GetJobBySource(ctx, model.SourceMynavi, "123456")
		require.NoError(t, err)
		assert.Equal(t, j.ID, got.ID)
		require.NotNil(t, got.SalaryMin)
		assert.Equal(t, salaryMin, *got.SalaryMin)
		assert.Nil(t, got.SalaryMax)
		assert.True(t, got.IsActive)

		got.Title = "法人営業リーダー"
		got.IsActive = false
		require.NoError(t, s.UpdateJob(ctx, got))

		later := now.Add(time.Hour)
		require.NoError(t, s.UpdateJobLastChecked(ctx, j.ID, later))

		got, err = s.GetJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, "法人営業リーダー", got.Title)
		assert.False(t, got.IsActive)
		assert.Equal(t, 1, got.UpdateCount)
		assert.WithinDuration(t, later, got.LastCheckedAt, time.Second)

		_, err = s.GetJobBySource(ctx, model.SourceDoda, "123456")
		assert.True(t, errors.Is(err, ErrNotFound))

		dup := *j
		dup.SourceJobID = "other"
		assert.Error(t, s.InsertJob(ctx, &dup), "source_url is unique")
	})

	t.Run("Logs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Now().UTC().Add(-2 * time.Hour)
		for i, src := range []model.Source{model.SourceMynavi, model.SourceDoda, model.SourceMynavi} {
			start := base.Add(time.Duration(i) * 30 * time.Minute)
			id, err := s.InsertLog(ctx, &model.ScrapingLog{
				RunID:        "run-1",
				Source:       src,
				StartedAt:    start,
				FinishedAt:   start.Add(time.Minute),
				DurationMs:   60000,
				JobsFound:    10,
				NewJobs:      4,
				Errors:       i,
				SmartStopped: i == 2,
				Status:       model.LogStatusSuccess,
			})
			require.NoError(t, err)
			assert.NotZero(t, id)
		}

		logs, err := s.ListLogs(ctx, LogFilter{Source: model.SourceMynavi})
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.True(t, logs[0].SmartStopped, "newest first")
		assert.Equal(t, 2, logs[0].Errors)

		logs, err = s.ListLogs(ctx, LogFilter{Since: base.Add(45 * time.Minute)})
		require.NoError(t, err)
		require.Len(t, logs, 1)

		logs, err = s.ListLogs(ctx, LogFilter{RunID: "run-1", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, func(t *testing.T) Store { return newTestSQLiteStore(t) })
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestDedupeByURL(t *testing.T) {
	a1 := model.Lead{URL: "a", CompanyName: "first"}
	b := model.Lead{URL: "b"}
	a2 := model.Lead{URL: "a", CompanyName: "second"}
	got := dedupeByURL([]model.Lead{a1, b, a2})
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].CompanyName)
	assert.Equal(t, "b", got[1].URL)
}
