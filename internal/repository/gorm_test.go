package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

func setupTestDB(t *testing.T) *GormRunRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo := NewGormRunRepository(db)
	require.NoError(t, repo.Migrate())
	return repo
}

func sampleRun(uuid string) *model.ExportRun {
	return &model.ExportRun{
		RunUUID:      uuid,
		SourcePath:   "/data/alloc.bin",
		ContentHash:  "a1b2c3d4e5f60718",
		FileSize:     1 << 20,
		Strategy:     "index_optimized",
		Status:       model.RunStatusRunning,
		TotalRecords: 5000,
	}
}

func TestGormRunRepository_CreateAndGet(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	run := sampleRun("run-1")
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.NotZero(t, run.ID)

	got, err := repo.GetRunByUUID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.SourcePath, got.SourcePath)
	assert.Equal(t, run.ContentHash, got.ContentHash)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, int64(5000), got.TotalRecords)
}

func TestGormRunRepository_GetMissingRun(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.GetRunByUUID(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetErrorCode(err))
}

func TestGormRunRepository_CompleteRun(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	run := sampleRun("run-2")
	require.NoError(t, repo.CreateRun(ctx, run))

	run.TypeCounts = map[string]int64{
		"memory_analysis": 5000,
		"lifetime":        1200,
	}
	run.DurationMs = 840
	require.NoError(t, repo.CompleteRun(ctx, "run-2", run))

	got, err := repo.GetRunByUUID(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, int64(840), got.DurationMs)
	assert.Equal(t, int64(1200), got.TypeCounts["lifetime"])
}

func TestGormRunRepository_FailRun(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateRun(ctx, sampleRun("run-3")))
	require.NoError(t, repo.FailRun(ctx, "run-3", "log truncated at record 17/50"))

	got, err := repo.GetRunByUUID(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Contains(t, got.StatusInfo, "truncated")
}

func TestGormRunRepository_UpdateMissingRun(t *testing.T) {
	repo := setupTestDB(t)

	err := repo.FailRun(context.Background(), "ghost", "x")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetErrorCode(err))
}

func TestGormRunRepository_ListRecentRuns(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	for _, uuid := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, repo.CreateRun(ctx, sampleRun(uuid)))
	}

	runs, err := repo.ListRecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].RunUUID)
	assert.Equal(t, "run-b", runs[1].RunUUID)
}

func TestGormRunRepository_FindCompletedRunForSource(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	// A running run for the hash does not count.
	first := sampleRun("run-x")
	require.NoError(t, repo.CreateRun(ctx, first))

	found, err := repo.FindCompletedRunForSource(ctx, first.ContentHash)
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, repo.CompleteRun(ctx, "run-x", first))

	second := sampleRun("run-y")
	require.NoError(t, repo.CreateRun(ctx, second))
	require.NoError(t, repo.CompleteRun(ctx, "run-y", second))

	found, err = repo.FindCompletedRunForSource(ctx, first.ContentHash)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "run-y", found.RunUUID, "latest completed run wins")
}

func TestJSONField_RoundTrip(t *testing.T) {
	f := JSONField{"performance": 42}

	v, err := f.Value()
	require.NoError(t, err)

	var got JSONField
	require.NoError(t, got.Scan(v))
	assert.Equal(t, f, got)

	var empty JSONField
	require.NoError(t, empty.Scan(nil))
	assert.Empty(t, empty)
}
