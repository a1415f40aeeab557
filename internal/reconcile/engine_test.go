package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.SQLiteStore, *time.Time) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	clock := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	e := New(st)
	e.now = func() time.Time { return clock }
	return e, st, &clock
}

func rawListing(n int) *model.RawListing {
	return &model.RawListing{
		Source:         model.SourceMynavi,
		DetailURL:      fmt.Sprintf("https://tenshoku.mynavi.jp/jobinfo-%d-1-1-1/", 100000+n),
		CompanyName:    fmt.Sprintf("株式会社テスト%d", n),
		JobTitle:       "法人営業",
		SalaryText:     "月給25万円〜",
		EmploymentType: "正社員",
		Area:           "東京都港区",
		ScrapeStatus:   model.ScrapeStatusStep1,
	}
}

func TestEngine_ThreeFreshURLs(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := e.Upsert(ctx, rawListing(i))
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.Equal(t, JobInserted, res.Job)
		assert.NotZero(t, res.LeadID)
	}

	leads, err := st.List(ctx, store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 3)

	for i := 1; i <= 3; i++ {
		res, err := e.Upsert(ctx, rawListing(i))
		require.NoError(t, err)
		assert.False(t, res.IsNew)
	}
	leads, err = st.List(ctx, store.LeadFilter{})
	require.NoError(t, err)
	assert.Len(t, leads, 3, "re-scraping the same URLs never adds rows")
}

func TestEngine_ProtectedPhone(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	raw := rawListing(1)
	res, err := e.Upsert(ctx, raw)
	require.NoError(t, err)

	manual := "03-1234-5678"
	require.NoError(t, st.Update(ctx, res.LeadID, model.LeadUpdate{Phone: &manual}))

	again := rawListing(1)
	again.Phone = "03-9999-9999"
	again.Revenue = "50億円"
	_, err = e.Upsert(ctx, again)
	require.NoError(t, err)

	got, err := st.GetByID(ctx, res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, manual, got.Phone)
	assert.Equal(t, "50億円", got.Revenue)
}

func TestEngine_RankDetectedOnInsert(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	raw := rawListing(1)
	raw.BudgetRank = model.RankA
	raw.RankConfidence = 0.9
	res, err := e.Upsert(ctx, raw)
	require.NoError(t, err)

	got, err := st.GetByID(ctx, res.LeadID)
	require.NoError(t, err)
	assert.Equal(t, model.RankA, got.BudgetRank)
	require.NotNil(t, got.RankDetectedAt)
	require.NotNil(t, got.LastSeenAt)
}

func TestEngine_IdempotentJobRescrape(t *testing.T) {
	e, st, clock := newTestEngine(t)
	ctx := context.Background()

	raw := rawListing(7)
	res, err := e.Upsert(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, JobInserted, res.Job)

	*clock = clock.Add(6 * time.Hour)
	res, err = e.Upsert(ctx, rawListing(7))
	require.NoError(t, err)
	assert.Equal(t, JobUnchanged, res.Job)

	job, err := st.GetJobBySource(ctx, model.SourceMynavi, "100007")
	require.NoError(t, err)
	assert.Equal(t, 0, job.UpdateCount)
	assert.WithinDuration(t, *clock, job.LastCheckedAt, time.Second)
	assert.WithinDuration(t, clock.Add(-6*time.Hour), job.UpdatedAt, time.Second)

	changed := rawListing(7)
	changed.SalaryText = "月給30万円〜"
	res, err = e.Upsert(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, JobUpdated, res.Job)

	job, err = st.GetJobBySource(ctx, model.SourceMynavi, "100007")
	require.NoError(t, err)
	assert.Equal(t, 1, job.UpdateCount)
	require.NotNil(t, job.SalaryMin)
	assert.Equal(t, int64(300000), *job.SalaryMin)
	assert.WithinDuration(t, clock.Add(-6*time.Hour), job.FirstSeenAt, time.Second)
}

func TestEngine_UpsertBatch(t *testing.T) {
	e, st, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Upsert(ctx, rawListing(1))
	require.NoError(t, err)

	res, err := e.UpsertBatch(ctx, []*model.RawListing{rawListing(1), rawListing(2), rawListing(3)})
	require.NoError(t, err)
	assert.Equal(t, store.BatchResult{New: 2, Updated: 1}, res)

	_, err = st.GetJobBySource(ctx, model.SourceMynavi, "100003")
	require.NoError(t, err)
}

func TestEngine_RejectsMissingURL(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Upsert(context.Background(), &model.RawListing{Source: model.SourceDoda})
	require.Error(t, err)

	_, err = e.UpsertBatch(context.Background(), []*model.RawListing{rawListing(1), {}})
	require.Error(t, err)
}

type failingJobs struct {
	Store
}

func (failingJobs) GetJobBySource(context.Context, model.Source, string) (*model.NormalizedJob, error) {
	return nil, errors.New("db gone")
}

func TestEngine_JobErrorKeepsLeadResult(t *testing.T) {
	_, st, _ := newTestEngine(t)
	e := New(failingJobs{Store: st})

	res, err := e.Upsert(context.Background(), rawListing(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
	assert.True(t, res.IsNew)
	assert.NotZero(t, res.LeadID)
}
