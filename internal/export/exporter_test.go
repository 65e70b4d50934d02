package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/internal/binindex"
	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/model"
)

func writeTestLog(t *testing.T, dir string, records []*model.AllocationRecord) string {
	t.Helper()

	path := filepath.Join(dir, "alloc.bin")
	w, err := binlog.NewWriter(path, nil)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())
	return path
}

func newTestExporter(t *testing.T, mutate func(*config.ExportConfig)) (*AdaptiveExporter, *config.ExportConfig) {
	t.Helper()

	cfg := testExportConfig()
	cfg.OutputDir = t.TempDir()
	cfg.IndexCache = false
	if mutate != nil {
		mutate(cfg)
	}
	exporter, err := NewAdaptiveExporter(cfg, nil)
	require.NoError(t, err)
	return exporter, cfg
}

func loadRows(t *testing.T, path string) []map[string]json.RawMessage {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &rows))
	return rows
}

func TestAdaptiveExporter_StrategiesProduceIdenticalOutput(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), fixtureRecords())

	type run struct {
		strategy string
		rows     map[string][]map[string]json.RawMessage
	}
	var runs []run

	for _, forced := range []string{"simple_direct", "index_optimized", "fully_streaming"} {
		exporter, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
			cfg.ForceStrategy = forced
		})

		stats, err := exporter.Export(context.Background(), logPath, "snapshot", nil)
		require.NoError(t, err)
		assert.Equal(t, forced, stats.StrategyName)
		assert.Equal(t, int64(10), stats.RecordsProcessed)
		require.Len(t, stats.PerType, 5)

		r := run{strategy: forced, rows: make(map[string][]map[string]json.RawMessage)}
		for _, ts := range stats.PerType {
			r.rows[ts.JsonType] = loadRows(t, ts.OutputPath)
		}
		runs = append(runs, r)
	}

	// All three strategies must agree row for row, in order.
	for _, r := range runs[1:] {
		for name, rows := range runs[0].rows {
			assert.Equal(t, rows, r.rows[name], "view %s differs between %s and %s",
				name, runs[0].strategy, r.strategy)
		}
	}

	counts := map[string]int{
		"memory_analysis":      10,
		"lifetime_analysis":    2,
		"performance_analysis": 3,
		"complex_types":        4,
		"unsafe_ffi":           3,
	}
	for name, expected := range counts {
		assert.Len(t, runs[0].rows[name], expected, "view %s", name)
	}
}

func TestAdaptiveExporter_StrategySpecificQuickFilterParams(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), prunableRecords())

	tune := func(cfg *config.ExportConfig) {
		cfg.QuickFilterThreshold = 100
		cfg.QuickFilterBatchSize = 25
		cfg.StreamingQuickFilterThreshold = 100
		cfg.StreamingQuickFilterBatchSize = 100
		cfg.IndexCache = true
	}

	medium, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
		tune(cfg)
		cfg.ForceStrategy = "index_optimized"
	})
	_, err := medium.Export(context.Background(), logPath, "medium", nil)
	require.NoError(t, err)

	cache := binindex.NewCache(nil)
	idx, err := cache.Load(logPath)
	require.NoError(t, err)
	require.NotNil(t, idx.Allocations.QuickFilter)
	assert.Equal(t, uint32(25), idx.Allocations.QuickFilter.BatchSize,
		"medium files index with fine-grained batches")

	streaming, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
		tune(cfg)
		cfg.ForceStrategy = "fully_streaming"
	})
	_, err = streaming.Export(context.Background(), logPath, "streaming", nil)
	require.NoError(t, err)

	idx, err = cache.Load(logPath)
	require.NoError(t, err)
	require.NotNil(t, idx.Allocations.QuickFilter)
	assert.Equal(t, uint32(100), idx.Allocations.QuickFilter.BatchSize,
		"the streaming strategy rebuilds the index with its own coarser batches")
}

func TestAdaptiveExporter_StreamingParamsFallBack(t *testing.T) {
	exporter, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
		cfg.QuickFilterThreshold = 1000
		cfg.QuickFilterBatchSize = 500
		cfg.StreamingQuickFilterThreshold = 0
		cfg.StreamingQuickFilterBatchSize = 0
	})

	threshold, batchSize := exporter.streamingQuickFilterParams()
	assert.Equal(t, uint32(1000), threshold)
	assert.Equal(t, 500, batchSize)
}

func TestAdaptiveExporter_EmptyInputProducesValidEmptyArrays(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), nil)

	for _, forced := range []string{"simple_direct", "index_optimized", "fully_streaming"} {
		exporter, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
			cfg.ForceStrategy = forced
		})

		stats, err := exporter.Export(context.Background(), logPath, "empty", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.RecordsProcessed)
		require.Len(t, stats.PerType, 5)

		for _, ts := range stats.PerType {
			rows := loadRows(t, ts.OutputPath)
			assert.Empty(t, rows, "view %s via %s", ts.JsonType, forced)
		}
	}
}

func TestAdaptiveExporter_SubsetOfViews(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), fixtureRecords())
	exporter, cfg := newTestExporter(t, nil)

	stats, err := exporter.Export(context.Background(), logPath, "partial",
		[]JsonType{LifetimeAnalysis, UnsafeFFI})
	require.NoError(t, err)
	require.Len(t, stats.PerType, 2)
	assert.Equal(t, int64(5), stats.TotalRecordsWritten())

	// Only the requested views were written.
	entries, err := os.ReadDir(cfg.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "partial_lifetime.json"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "partial_unsafe_ffi.json"))
}

func TestAdaptiveExporter_OutputPathNaming(t *testing.T) {
	exporter, cfg := newTestExporter(t, nil)

	assert.Equal(t, filepath.Join(cfg.OutputDir, "snap_memory_analysis.json"),
		exporter.OutputPath("snap", MemoryAnalysis))
	assert.Equal(t, filepath.Join(cfg.OutputDir, "snap_lifetime.json"),
		exporter.OutputPath("snap", LifetimeAnalysis))
	assert.Equal(t, filepath.Join(cfg.OutputDir, "snap_performance.json"),
		exporter.OutputPath("snap", PerformanceAnalysis))
}

func TestAdaptiveExporter_MissingLogFile(t *testing.T) {
	exporter, _ := newTestExporter(t, nil)

	_, err := exporter.Export(context.Background(), "/nonexistent/alloc.bin", "x", nil)
	require.Error(t, err)
}

func TestAdaptiveExporter_IndexCacheReuse(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), fixtureRecords())
	exporter, _ := newTestExporter(t, func(cfg *config.ExportConfig) {
		cfg.ForceStrategy = "index_optimized"
		cfg.IndexCache = true
	})

	first, err := exporter.Export(context.Background(), logPath, "run1", nil)
	require.NoError(t, err)
	assert.False(t, first.IndexFromCache)

	second, err := exporter.Export(context.Background(), logPath, "run2", nil)
	require.NoError(t, err)
	assert.True(t, second.IndexFromCache)

	// Cached-index output matches the freshly indexed one.
	for i, ts := range first.PerType {
		assert.Equal(t, loadRows(t, ts.OutputPath), loadRows(t, second.PerType[i].OutputPath))
	}
}

func TestAdaptiveExporter_StatsAggregation(t *testing.T) {
	logPath := writeTestLog(t, t.TempDir(), fixtureRecords())
	exporter, _ := newTestExporter(t, nil)

	stats, err := exporter.Export(context.Background(), logPath, "agg", nil)
	require.NoError(t, err)

	counts := stats.TypeCounts()
	assert.Equal(t, int64(10), counts["memory_analysis"])
	assert.Equal(t, int64(2), counts["lifetime_analysis"])
	assert.Equal(t, stats.TotalRecordsWritten(), int64(10+2+3+4+3))
	assert.Greater(t, stats.TotalDuration.Nanoseconds(), int64(0))
	for _, ts := range stats.PerType {
		assert.Greater(t, ts.BytesWritten, int64(0))
	}
}
