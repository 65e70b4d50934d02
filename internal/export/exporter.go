package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alloctrace/internal/binindex"
	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/utils"
	"github.com/alloctrace/pkg/writer"
)

// AdaptiveExporter routes each export through one of three strategies based
// on input size: small logs decode whole in memory, medium logs read
// selectively through a quick-filtered index, and large logs stream through
// bounded buffers. All three produce identical output for the same input.
type AdaptiveExporter struct {
	cfg      *config.ExportConfig
	logger   utils.Logger
	builder  *binindex.Builder
	cache    *binindex.Cache
	selector *Selector
}

// NewAdaptiveExporter wires an exporter from the export config.
func NewAdaptiveExporter(cfg *config.ExportConfig, logger utils.Logger) (*AdaptiveExporter, error) {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	selector, err := NewSelector(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &AdaptiveExporter{
		cfg:      cfg,
		logger:   logger,
		builder:  binindex.NewBuilder(logger),
		cache:    binindex.NewCache(logger),
		selector: selector,
	}, nil
}

// OutputPath returns where a view's JSON file is written for a given base
// name, e.g. base "snapshot" and the lifetime view yield
// "<output_dir>/snapshot_lifetime.json".
func (e *AdaptiveExporter) OutputPath(baseName string, jsonType JsonType) string {
	return filepath.Join(e.cfg.OutputDir, fmt.Sprintf("%s_%s.json", baseName, jsonType.Suffix()))
}

// Export writes one JSON file per requested view. A nil or empty types
// slice exports all five views. Every requested view produces a file even
// when no record matches; an empty view is a valid empty JSON array.
func (e *AdaptiveExporter) Export(ctx context.Context, logPath string, baseName string, types []JsonType) (*MultiExportStats, error) {
	if len(types) == 0 {
		types = AllJsonTypes()
	}

	info, err := os.Stat(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.CodeNotFound, "log file not found: "+logPath, err)
		}
		return nil, errors.Wrap(errors.CodeIOError, "failed to stat log file "+logPath, err)
	}

	if e.cfg.OutputDir != "" {
		if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
			return nil, errors.Wrap(errors.CodeIOError, "failed to create output dir "+e.cfg.OutputDir, err)
		}
	}

	strategy := e.selector.Select(info.Size())
	stats := &MultiExportStats{
		SourcePath:   logPath,
		FileSize:     info.Size(),
		Strategy:     strategy,
		StrategyName: strategy.String(),
	}

	timer := utils.NewTimer("export", utils.WithLogger(e.logger))
	start := time.Now()

	switch strategy {
	case StrategySimpleDirect:
		err = e.exportSimpleDirect(ctx, logPath, baseName, types, timer, stats)
	case StrategyIndexOptimized:
		err = e.exportIndexed(ctx, logPath, baseName, types, timer, stats,
			e.cfg.QuickFilterThreshold, e.cfg.QuickFilterBatchSize,
			SelectiveOptions{
				BufferSize:     e.cfg.BufferSize,
				FlushWatermark: e.cfg.FlushWatermark,
			})
	case StrategyFullyStreaming:
		threshold, batchSize := e.streamingQuickFilterParams()
		err = e.exportIndexed(ctx, logPath, baseName, types, timer, stats,
			threshold, batchSize,
			SelectiveOptions{
				BufferSize:     e.cfg.BufferSize,
				FlushWatermark: e.cfg.FlushWatermark,
				ParallelDecode: e.cfg.ParallelDecode,
				MaxWorkers:     e.cfg.MaxWorkers,
			})
	default:
		err = errors.Newf(errors.CodeUnknown, "unhandled strategy %d", strategy)
	}
	if err != nil {
		return nil, err
	}

	stats.TotalDuration = time.Since(start)
	e.logger.Info("exported %s (%d bytes) via %s: %d records, %d rows across %d views in %v",
		logPath, stats.FileSize, stats.StrategyName, stats.RecordsProcessed,
		stats.TotalRecordsWritten(), len(stats.PerType), stats.TotalDuration)
	return stats, nil
}

// exportSimpleDirect loads every record once and projects each view from
// the in-memory slice. No index is built or cached.
func (e *AdaptiveExporter) exportSimpleDirect(
	ctx context.Context,
	logPath string,
	baseName string,
	types []JsonType,
	timer *utils.Timer,
	stats *MultiExportStats,
) error {
	phase := timer.Start("load")
	records, err := binlog.NewParser(e.logger).LoadAllocations(logPath)
	phase.Stop()
	if err != nil {
		return err
	}
	stats.RecordsProcessed = int64(len(records))

	for _, jsonType := range types {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.CodeTimeout, "export cancelled", err)
		}
		phase := timer.Start("export_" + jsonType.Suffix())
		typeStats, err := e.writeViewDirect(records, jsonType, e.OutputPath(baseName, jsonType))
		phase.Stop()
		if err != nil {
			return err
		}
		stats.PerType = append(stats.PerType, *typeStats)
	}
	return nil
}

func (e *AdaptiveExporter) writeViewDirect(records []*model.AllocationRecord, jsonType JsonType, outputPath string) (*TypeExportStats, error) {
	start := time.Now()
	typeStats := &TypeExportStats{JsonType: jsonType.String(), OutputPath: outputPath}

	// Rows marshal as a plain array so the output is byte-compatible with
	// the streamed strategies.
	rows := make([]any, 0, len(records))
	for _, rec := range records {
		if !jsonType.Matches(rec) {
			typeStats.RecordsSkipped++
			continue
		}
		rows = append(rows, jsonType.Project(rec))
	}

	if err := writer.NewJSONWriter[[]any]().WriteToFile(rows, outputPath); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write "+outputPath, err)
	}
	typeStats.RecordsWritten = int64(len(rows))
	if info, err := os.Stat(outputPath); err == nil {
		typeStats.BytesWritten = info.Size()
	}
	typeStats.Duration = time.Since(start)
	return typeStats, nil
}

// exportIndexed builds (or loads) the binary index once, then runs the
// selective exporter per view. The two indexed strategies differ in their
// quick-filter build parameters and in the selective options passed in:
// medium files get smaller batches for tighter pruning, huge files get a
// higher threshold and larger batches so index build stays sub-linear.
func (e *AdaptiveExporter) exportIndexed(
	ctx context.Context,
	logPath string,
	baseName string,
	types []JsonType,
	timer *utils.Timer,
	stats *MultiExportStats,
	quickFilterThreshold uint32,
	quickFilterBatchSize int,
	opts SelectiveOptions,
) error {
	phase := timer.Start("index")
	idx, fromCache, err := e.loadIndex(logPath, quickFilterThreshold, quickFilterBatchSize)
	phase.Stop()
	if err != nil {
		return err
	}
	stats.IndexFromCache = fromCache
	stats.RecordsProcessed = int64(idx.Allocations.Count)

	selective := NewSelectiveJSONExporter(e.logger, opts)
	for _, jsonType := range types {
		phase := timer.Start("export_" + jsonType.Suffix())
		typeStats, err := selective.ExportToJSONSelective(ctx, logPath, idx, jsonType, e.OutputPath(baseName, jsonType))
		phase.Stop()
		if err != nil {
			return err
		}
		stats.PerType = append(stats.PerType, *typeStats)
	}
	return nil
}

func (e *AdaptiveExporter) loadIndex(logPath string, threshold uint32, batchSize int) (*binindex.BinaryIndex, bool, error) {
	if e.cfg.IndexCache {
		return e.cache.LoadOrBuild(e.builder, logPath, threshold, batchSize)
	}
	idx, err := e.builder.Build(logPath, threshold, batchSize)
	return idx, false, err
}

// streamingQuickFilterParams returns the quick-filter build parameters for
// the fully streaming strategy, falling back to the medium-file values
// when the streaming-specific ones are unset.
func (e *AdaptiveExporter) streamingQuickFilterParams() (uint32, int) {
	threshold := e.cfg.StreamingQuickFilterThreshold
	if threshold == 0 {
		threshold = e.cfg.QuickFilterThreshold
	}
	batchSize := e.cfg.StreamingQuickFilterBatchSize
	if batchSize == 0 {
		batchSize = e.cfg.QuickFilterBatchSize
	}
	return threshold, batchSize
}
