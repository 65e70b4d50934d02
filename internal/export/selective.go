package export

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/alloctrace/internal/binindex"
	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/collections"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/parallel"
	"github.com/alloctrace/pkg/utils"
	"github.com/alloctrace/pkg/writer"
)

// IncompleteSuffix marks partially written outputs after a cancellation.
// The partial file is left in place so the caller can decide whether to
// retry; the marker makes the state caller-visible.
const IncompleteSuffix = ".incomplete"

// SelectiveOptions tunes the index-driven exporter's buffering and
// parallelism.
type SelectiveOptions struct {
	// BufferSize is the output buffer capacity in bytes.
	BufferSize int
	// FlushWatermark is the buffered-byte count that triggers a flush.
	FlushWatermark int
	// ParallelDecode fans record decoding out over worker goroutines,
	// one contiguous batch range per task. Output order is preserved.
	ParallelDecode bool
	// MaxWorkers caps decode workers (0 = derive from CPU count).
	MaxWorkers int
	// MaxBatchRecords caps the records read per pread when the index
	// carries no quick filter to bound batches (0 = default).
	MaxBatchRecords int
}

// fallbackBatchRecords bounds the pread span for unfiltered indexes.
const fallbackBatchRecords = 4096

// SelectiveJSONExporter writes one view from an indexed log. It seeks only
// to candidate records: quick-filter batches that provably cannot match are
// skipped without touching their byte ranges, and each kept record is
// projected down to the view's required fields.
type SelectiveJSONExporter struct {
	logger utils.Logger
	opts   SelectiveOptions
}

// NewSelectiveJSONExporter creates an exporter. A nil logger falls back to
// the null logger.
func NewSelectiveJSONExporter(logger utils.Logger, opts SelectiveOptions) *SelectiveJSONExporter {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &SelectiveJSONExporter{logger: logger, opts: opts}
}

// batchBounds is one contiguous record range processed as a unit.
type batchBounds struct {
	first uint32
	end   uint32
}

type batchResult struct {
	rows    [][]byte
	skipped int64
}

// ExportToJSONSelective writes the view's JSON array for all matching
// records in index order. Cancellation is honored between batches; a
// cancelled export leaves the partial output plus an ".incomplete" marker.
func (e *SelectiveJSONExporter) ExportToJSONSelective(
	ctx context.Context,
	logPath string,
	idx *binindex.BinaryIndex,
	jsonType JsonType,
	outputPath string,
) (*TypeExportStats, error) {
	start := time.Now()
	stats := &TypeExportStats{JsonType: jsonType.String(), OutputPath: outputPath}

	scanner, err := binlog.OpenScanner(logPath)
	if err != nil {
		return nil, err
	}
	table := scanner.Table()
	scanner.Close()

	file, err := os.Open(logPath)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to open log file "+logPath, err)
	}
	defer file.Close()

	out, err := writer.NewStreamArrayWriter(outputPath, e.opts.BufferSize, e.opts.FlushWatermark)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to create output "+outputPath, err)
	}

	filters := jsonType.Filters()
	alloc := idx.Allocations
	candidates := e.buildCandidates(alloc, filters, stats)

	if e.opts.ParallelDecode && len(candidates) > 1 {
		err = e.exportParallel(ctx, file, alloc, table, jsonType, filters, candidates, out, stats)
	} else {
		err = e.exportSequential(ctx, file, alloc, table, jsonType, filters, candidates, out, stats)
	}
	if err != nil {
		out.Abort()
		if ctx.Err() != nil {
			e.markIncomplete(outputPath)
		}
		return nil, err
	}

	if err := out.Close(); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to finalize output "+outputPath, err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		stats.BytesWritten = info.Size()
	}
	stats.Duration = time.Since(start)

	e.logger.Debug("exported %s: %d written, %d skipped (%d batches pruned) in %v",
		jsonType, stats.RecordsWritten, stats.RecordsSkipped, stats.BatchesSkipped, stats.Duration)
	return stats, nil
}

// buildCandidates returns the record ranges worth decoding. Candidate
// batches survive the quick-filter pre-check; skipped ones cost one
// range/bloom test instead of a seek and decode. Without a quick filter
// every record is a candidate, but one pread across the whole segment
// would buffer it entirely, so the range is chunked to keep memory
// bounded by the chunk span.
func (e *SelectiveJSONExporter) buildCandidates(
	alloc *binindex.CompactAllocationIndex,
	filters []RecordFilter,
	stats *TypeExportStats,
) []batchBounds {
	qf := alloc.QuickFilter
	var candidates []batchBounds
	if qf.BatchCount() > 0 {
		for i := 0; i < qf.BatchCount(); i++ {
			first, end, _ := qf.BatchBounds(i)
			if !batchMightMatch(filters, qf, i) {
				stats.BatchesSkipped++
				stats.RecordsSkipped += int64(end - first)
				continue
			}
			candidates = append(candidates, batchBounds{first: first, end: end})
		}
		return candidates
	}

	chunk := uint32(e.opts.MaxBatchRecords)
	if chunk == 0 {
		chunk = fallbackBatchRecords
	}
	for first := uint32(0); first < alloc.Count; first += chunk {
		end := first + chunk
		if end > alloc.Count {
			end = alloc.Count
		}
		candidates = append(candidates, batchBounds{first: first, end: end})
	}
	return candidates
}

func (e *SelectiveJSONExporter) exportSequential(
	ctx context.Context,
	file *os.File,
	alloc *binindex.CompactAllocationIndex,
	table *binlog.StringTable,
	jsonType JsonType,
	filters []RecordFilter,
	candidates []batchBounds,
	out *writer.StreamArrayWriter,
	stats *TypeExportStats,
) error {
	for _, batch := range candidates {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.CodeTimeout, "export cancelled", err)
		}
		res, err := decodeBatch(file, alloc, table, jsonType, filters, batch)
		if err != nil {
			return err
		}
		stats.RecordsSkipped += res.skipped
		for _, row := range res.rows {
			if err := out.WriteRaw(row); err != nil {
				return errors.Wrap(errors.CodeIOError, "failed to write output row", err)
			}
			stats.RecordsWritten++
		}
	}
	return nil
}

// exportParallel decodes groups of batches concurrently, writing each
// group's rows in batch order before starting the next group. Grouping
// keeps buffered rows bounded by the worker count while preserving record
// order exactly.
func (e *SelectiveJSONExporter) exportParallel(
	ctx context.Context,
	file *os.File,
	alloc *binindex.CompactAllocationIndex,
	table *binlog.StringTable,
	jsonType JsonType,
	filters []RecordFilter,
	candidates []batchBounds,
	out *writer.StreamArrayWriter,
	stats *TypeExportStats,
) error {
	poolCfg := parallel.DefaultPoolConfig()
	if e.opts.MaxWorkers > 0 {
		poolCfg = poolCfg.WithWorkers(e.opts.MaxWorkers)
	}
	pool := parallel.NewWorkerPool[batchBounds, batchResult](poolCfg)

	groupSize := poolCfg.MaxWorkers
	for from := 0; from < len(candidates); from += groupSize {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.CodeTimeout, "export cancelled", err)
		}
		to := from + groupSize
		if to > len(candidates) {
			to = len(candidates)
		}

		results := pool.ExecuteFunc(ctx, candidates[from:to],
			func(_ context.Context, batch batchBounds) (batchResult, error) {
				return decodeBatch(file, alloc, table, jsonType, filters, batch)
			})

		// Results arrive in task order, so concatenation preserves
		// record order regardless of worker completion order.
		for _, res := range results {
			if res.Error != nil {
				return res.Error
			}
			stats.RecordsSkipped += res.Result.skipped
			for _, row := range res.Result.rows {
				if err := out.WriteRaw(row); err != nil {
					return errors.Wrap(errors.CodeIOError, "failed to write output row", err)
				}
				stats.RecordsWritten++
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.CodeTimeout, "export cancelled", err)
	}
	return nil
}

// decodeBatch reads one contiguous record range in a single pread, decodes
// each record, applies the view's predicates and returns the encoded rows
// for the survivors. Concurrent calls are safe: os.File.ReadAt carries no
// shared cursor.
func decodeBatch(
	file *os.File,
	alloc *binindex.CompactAllocationIndex,
	table *binlog.StringTable,
	jsonType JsonType,
	filters []RecordFilter,
	batch batchBounds,
) (batchResult, error) {
	var res batchResult
	if batch.first >= batch.end {
		return res, nil
	}

	startOffset, err := alloc.RecordOffset(int(batch.first))
	if err != nil {
		return res, err
	}
	lastOffset, err := alloc.RecordOffset(int(batch.end - 1))
	if err != nil {
		return res, err
	}
	lastSize, err := alloc.RecordSize(int(batch.end - 1))
	if err != nil {
		return res, err
	}

	span := lastOffset + uint64(lastSize) - startOffset
	bufPtr := collections.GetByteSlice()
	defer collections.PutByteSlice(bufPtr)
	if uint64(cap(*bufPtr)) < span {
		*bufPtr = make([]byte, span)
	}
	buf := (*bufPtr)[:span]
	if _, err := file.ReadAt(buf, int64(startOffset)); err != nil {
		return res, errors.Wrapf(errors.CodeCorruptedData,
			"failed to read %d record bytes at offset %d: index points past end of file",
			err, span, startOffset)
	}

	for i := batch.first; i < batch.end; i++ {
		offset, err := alloc.RecordOffset(int(i))
		if err != nil {
			return res, err
		}
		size, err := alloc.RecordSize(int(i))
		if err != nil {
			return res, err
		}
		pos := offset - startOffset
		rec, err := binlog.DecodeRecord(buf[pos:pos+uint64(size)], table)
		if err != nil {
			return res, errors.Wrapf(errors.CodeSerializationError,
				"failed to decode record %d at offset %d", err, i, offset)
		}

		if !matchesAll(filters, rec) {
			res.skipped++
			continue
		}
		row, err := json.Marshal(jsonType.Project(rec))
		if err != nil {
			return res, errors.Wrap(errors.CodeSerializationError, "failed to encode output row", err)
		}
		res.rows = append(res.rows, row)
	}
	return res, nil
}

// markIncomplete drops a marker file beside a partial output.
func (e *SelectiveJSONExporter) markIncomplete(outputPath string) {
	marker := outputPath + IncompleteSuffix
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		e.logger.Warn("failed to mark incomplete output %s: %v", outputPath, err)
	}
}
