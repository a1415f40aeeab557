package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobleads-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_WALMode(t *testing.T) {
	st := newTestSQLiteStore(t)
	var mode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_SafeUpsert_UsesClock(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	first := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return first }

	l := testLead("https://doda.jp/clock")
	_, err := st.SafeUpsert(ctx, l)
	require.NoError(t, err)

	second := first.Add(48 * time.Hour)
	st.now = func() time.Time { return second }
	_, err = st.SafeUpsert(ctx, testLead(l.URL))
	require.NoError(t, err)

	got, err := st.GetByURL(ctx, l.URL)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(first), "created_at is kept from the insert")
	assert.True(t, got.UpdatedAt.Equal(second))
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, got.LastSeenAt.Equal(second))
	assert.Nil(t, got.RankDetectedAt)
}

func TestSQLite_UpdateJob_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateJob(context.Background(), &model.NormalizedJob{ID: 404})
	assert.ErrorIs(t, err, ErrNotFound)
}
