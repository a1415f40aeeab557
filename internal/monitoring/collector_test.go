package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
	"github.com/sells-group/jobleads-cli/internal/store"
)

type mockLogs struct {
	entries []model.ScrapingLog
	err     error
	filter  store.LogFilter
}

func (m *mockLogs) ListLogs(_ context.Context, f store.LogFilter) ([]model.ScrapingLog, error) {
	m.filter = f
	return m.entries, m.err
}

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestCollector(logs LogLister, expected ...model.Source) *Collector {
	c := NewCollector(logs, expected)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	logs := &mockLogs{entries: []model.ScrapingLog{
		{Source: model.SourceMynavi, Status: model.LogStatusSuccess, JobsFound: 40, NewJobs: 10, StartedAt: fixedNow.Add(-3 * time.Hour)},
		{Source: model.SourceMynavi, Status: model.LogStatusError, ErrorMessage: "launch failed", StartedAt: fixedNow.Add(-time.Hour)},
		{Source: model.SourceDoda, Status: model.LogStatusPartial, JobsFound: 10, Errors: 6, SmartStopped: true, StartedAt: fixedNow.Add(-2 * time.Hour)},
	}}

	snap, err := newTestCollector(logs, model.SourceMynavi, model.SourceDoda, model.SourceRikunabi).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Add(-24*time.Hour), logs.filter.Since)
	assert.Equal(t, 3, snap.TotalRuns)
	assert.Equal(t, 1, snap.Failed)
	assert.Equal(t, 1, snap.Partial)
	assert.InDelta(t, 1.0/3.0, snap.FailureRate, 0.001)
	assert.Equal(t, []model.Source{model.SourceRikunabi}, snap.SilentSources)

	mynavi := snap.Stats(model.SourceMynavi)
	require.NotNil(t, mynavi)
	assert.Equal(t, 2, mynavi.Runs)
	assert.InDelta(t, 0.5, mynavi.FailureRate, 0.001)
	assert.Equal(t, "launch failed", mynavi.LastError)
	assert.Equal(t, fixedNow.Add(-time.Hour), *mynavi.LastRunAt)

	doda := snap.Stats(model.SourceDoda)
	require.NotNil(t, doda)
	assert.Equal(t, 1, doda.SmartStops)
	assert.Equal(t, 6, doda.Errors)

	require.Len(t, snap.Sources, 3)
	assert.Equal(t, model.SourceDoda, snap.Sources[0].Source)
}

func TestCollector_SourceThatFoundNothingIsSilent(t *testing.T) {
	logs := &mockLogs{entries: []model.ScrapingLog{
		{Source: model.SourceDoda, Status: model.LogStatusSuccess, StartedAt: fixedNow},
	}}
	snap, err := newTestCollector(logs, model.SourceDoda).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, []model.Source{model.SourceDoda}, snap.SilentSources)
}

func TestCollector_UnexpectedSourceStillCounted(t *testing.T) {
	logs := &mockLogs{entries: []model.ScrapingLog{
		{Source: model.SourceEnJapan, Status: model.LogStatusSuccess, JobsFound: 3, StartedAt: fixedNow},
	}}
	snap, err := newTestCollector(logs).Collect(context.Background(), 6)
	require.NoError(t, err)
	assert.Empty(t, snap.SilentSources)
	require.NotNil(t, snap.Stats(model.SourceEnJapan))
	assert.Nil(t, snap.Stats(model.SourceDoda))
}

func TestCollector_Error(t *testing.T) {
	_, err := newTestCollector(&mockLogs{err: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list logs")
}
