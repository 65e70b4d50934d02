package binindex

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/pkg/errors"
)

func TestCache_SaveLoad(t *testing.T) {
	path := writeLog(t, t.TempDir(), makeRecords(150))

	builder := NewBuilder(nil)
	built, err := builder.Build(path, 100, 50)
	require.NoError(t, err)

	cache := NewCache(nil)
	require.NoError(t, cache.Save(built))

	loaded, err := cache.Load(path)
	require.NoError(t, err)

	assert.Equal(t, built.SourceContentHash, loaded.SourceContentHash)
	assert.Equal(t, built.Header, loaded.Header)
	assert.Equal(t, built.Allocations.Count, loaded.Allocations.Count)
	assert.Equal(t, built.Allocations.RelativeOffsets, loaded.Allocations.RelativeOffsets)
	assert.Equal(t, built.Allocations.RecordSizes, loaded.Allocations.RecordSizes)
	require.NotNil(t, loaded.Allocations.QuickFilter)
	assert.Equal(t, built.Allocations.QuickFilter.BatchCount(), loaded.Allocations.QuickFilter.BatchCount())
}

func TestCache_MissWithoutFile(t *testing.T) {
	path := writeLog(t, t.TempDir(), makeRecords(5))

	_, err := NewCache(nil).Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetErrorCode(err))
}

func TestCache_StaleAfterRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, makeRecords(30))

	builder := NewBuilder(nil)
	built, err := builder.Build(path, 1000, 100)
	require.NoError(t, err)

	cache := NewCache(nil)
	require.NoError(t, cache.Save(built))

	// Rewrite the log; the cached index must no longer be served.
	writeLog(t, dir, makeRecords(31))

	_, err = cache.Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetErrorCode(err))
}

func TestCache_CorruptedPayload(t *testing.T) {
	path := writeLog(t, t.TempDir(), makeRecords(10))

	require.NoError(t, os.WriteFile(CachePath(path), []byte("not zstd"), 0o644))

	_, err := NewCache(nil).Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestCache_LoadOrBuild(t *testing.T) {
	path := writeLog(t, t.TempDir(), makeRecords(40))

	cache := NewCache(nil)
	builder := NewBuilder(nil)

	idx, hit, err := cache.LoadOrBuild(builder, path, 1000, 100)
	require.NoError(t, err)
	assert.False(t, hit, "first call builds")
	assert.Equal(t, uint32(40), idx.Allocations.Count)

	idx, hit, err = cache.LoadOrBuild(builder, path, 1000, 100)
	require.NoError(t, err)
	assert.True(t, hit, "second call is served from cache")
	assert.Equal(t, uint32(40), idx.Allocations.Count)
}

func TestCache_LoadOrBuildRebuildsOnParamChange(t *testing.T) {
	path := writeLog(t, t.TempDir(), makeRecords(150))

	cache := NewCache(nil)
	builder := NewBuilder(nil)

	idx, hit, err := cache.LoadOrBuild(builder, path, 100, 50)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NotNil(t, idx.Allocations.QuickFilter)
	assert.Equal(t, uint32(50), idx.Allocations.QuickFilter.BatchSize)

	// A different batch size is a miss: the cached filter granularity
	// no longer matches the requested one.
	idx, hit, err = cache.LoadOrBuild(builder, path, 100, 75)
	require.NoError(t, err)
	assert.False(t, hit, "batch-size change must rebuild")
	require.NotNil(t, idx.Allocations.QuickFilter)
	assert.Equal(t, uint32(75), idx.Allocations.QuickFilter.BatchSize)

	// Raising the threshold above the record count asks for an index
	// without any filter, so the filtered one is a miss too.
	idx, hit, err = cache.LoadOrBuild(builder, path, 1000, 75)
	require.NoError(t, err)
	assert.False(t, hit, "threshold change must rebuild")
	assert.Nil(t, idx.Allocations.QuickFilter)

	_, hit, err = cache.LoadOrBuild(builder, path, 1000, 75)
	require.NoError(t, err)
	assert.True(t, hit, "matching parameters are served from cache")
}
