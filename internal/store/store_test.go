package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repreneur-cli/internal/config"
	"github.com/sells-group/repreneur-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newSummary() *model.RunSummary {
	return &model.RunSummary{
		RunID:        uuid.New().String(),
		Status:       model.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
		SnapshotPath: "/tmp/leads.json",
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		sum := newSummary()
		run, err := s.CreateRun(ctx, sum)
		require.NoError(t, err)
		assert.Equal(t, sum.RunID, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, "/tmp/leads.json", got.Summary.SnapshotPath)
	})

	t.Run("FinishRunComplete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		sum := newSummary()
		_, err := s.CreateRun(ctx, sum)
		require.NoError(t, err)

		sum.Status = model.RunStatusComplete
		sum.Total = 12
		sum.New = 3
		sum.Sources = []model.SourceStats{
			{Source: "pappers", Fetched: 10, Normalized: 9, Dropped: map[string]int{"missing_legal_id": 1}},
		}
		sum.Tags = map[model.Channel]int{model.ChannelSuccession: 4}
		require.NoError(t, s.FinishRun(ctx, sum))

		got, err := s.GetRun(ctx, sum.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 12, got.Summary.Total)
		require.Len(t, got.Summary.Sources, 1)
		assert.Equal(t, 1, got.Summary.Sources[0].DroppedTotal())
		assert.Equal(t, 4, got.Summary.Tags[model.ChannelSuccession])
	})

	t.Run("FinishRunWithErrorIsFailed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		sum := newSummary()
		_, err := s.CreateRun(ctx, sum)
		require.NoError(t, err)

		sum.Error = "write snapshot: disk full"
		require.NoError(t, s.FinishRun(ctx, sum))

		got, err := s.GetRun(ctx, sum.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "write snapshot: disk full", got.Summary.Error)
	})

	t.Run("FinishRunNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.FinishRun(context.Background(), newSummary())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "nonexistent-id")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		first := newSummary()
		_, err := s.CreateRun(ctx, first)
		require.NoError(t, err)
		second := newSummary()
		_, err = s.CreateRun(ctx, second)
		require.NoError(t, err)
		second.Status = model.RunStatusComplete
		require.NoError(t, s.FinishRun(ctx, second))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, second.RunID, done[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		skipped, err := s.ListRuns(ctx, RunFilter{Limit: 10, Offset: 1})
		require.NoError(t, err)
		assert.Len(t, skipped, 1)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	_, isSQLite := s.(*SQLiteStore)
	assert.True(t, isSQLite)
	require.NoError(t, s.Close())

	s, err = Open(ctx, config.StoreConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, s)

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var s Store = Noop{}

	sum := newSummary()
	run, err := s.CreateRun(ctx, sum)
	require.NoError(t, err)
	assert.Equal(t, sum.RunID, run.ID)
	require.NoError(t, s.FinishRun(ctx, sum))

	_, err = s.GetRun(ctx, sum.RunID)
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
