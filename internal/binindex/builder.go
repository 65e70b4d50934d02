package binindex

import (
	"time"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/utils"
)

// Builder constructs a BinaryIndex in exactly one sequential pass over the
// log. The quick filter is only accumulated when the record count exceeds
// the threshold, so small logs skip the bloom-filter cost entirely.
type Builder struct {
	logger utils.Logger
}

// NewBuilder creates a builder. A nil logger falls back to the null logger.
func NewBuilder(logger utils.Logger) *Builder {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Builder{logger: logger}
}

// Build scans the log at path and returns its immutable index.
// quickFilterThreshold is the record count above which batch quick filters
// are accumulated; batchSize is the records-per-batch granularity.
func (b *Builder) Build(path string, quickFilterThreshold uint32, batchSize int) (*BinaryIndex, error) {
	if batchSize <= 0 {
		return nil, errors.Newf(errors.CodeInvalidInput, "batch size must be positive, got %d", batchSize)
	}

	hash, err := ContentHash(path)
	if err != nil {
		return nil, err
	}

	scanner, err := binlog.OpenScanner(path)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	header := scanner.Header()
	withQuickFilter := header.RecordCount > quickFilterThreshold
	b.logger.Debug("building index for %s: %d records, quick filter %v (threshold %d, batch %d)",
		path, header.RecordCount, withQuickFilter, quickFilterThreshold, batchSize)

	alloc := NewCompactAllocationIndex(scanner.RecordsStart())
	var qf *quickFilterBuilder
	if withQuickFilter {
		qf = newQuickFilterBuilder(batchSize, DefaultBloomParams())
	}

	for {
		scanned, err := scanner.Next()
		if err != nil {
			return nil, err
		}
		if scanned == nil {
			break
		}
		if err := alloc.AddRecord(scanned.Offset, scanned.Size); err != nil {
			return nil, err
		}
		if qf != nil {
			rec, err := binlog.DecodeRecordValue(scanned.Value, scanner.Table())
			if err != nil {
				return nil, errors.Wrapf(errors.CodeSerializationError,
					"failed to decode record %d while building quick filter", err, alloc.Count-1)
			}
			qf.observe(rec)
		}
	}

	metrics, err := scanner.ReadMetricsRegion()
	if err != nil {
		return nil, err
	}

	if qf != nil {
		alloc.QuickFilter = qf.finish()
	}

	idx := &BinaryIndex{
		FormatVersion:     IndexFormatVersion,
		SourceFilePath:    path,
		SourceContentHash: hash,
		SourceFileSize:    scanner.FileSize(),
		Header:            *header,
		StringTableRegion: *scanner.StringTableRegion(),
		Allocations:       alloc,
		AdvancedMetrics:   metrics,
		CreatedAt:         time.Now().UTC(),
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return idx, nil
}

// quickFilterBuilder accumulates one batch at a time while the builder
// scans, sealing each batch once its record quota is reached.
type quickFilterBuilder struct {
	batchSize int
	params    BloomFilterParams
	batches   []BatchFilter

	first       uint32
	count       uint32
	cur         BatchFilter
	threadBloom *BloomFilter
	typeBloom   *BloomFilter
}

func newQuickFilterBuilder(batchSize int, params BloomFilterParams) *quickFilterBuilder {
	b := &quickFilterBuilder{batchSize: batchSize, params: params}
	b.reset()
	return b
}

func (b *quickFilterBuilder) reset() {
	b.cur = BatchFilter{}
	b.count = 0
	b.threadBloom = NewBloomFilter(b.params)
	b.typeBloom = NewBloomFilter(b.params)
}

func (b *quickFilterBuilder) observe(rec *model.AllocationRecord) {
	if b.count == 0 {
		b.cur.PtrMin, b.cur.PtrMax = rec.Ptr, rec.Ptr
		b.cur.SizeMin, b.cur.SizeMax = rec.Size, rec.Size
		b.cur.TimestampMin, b.cur.TimestampMax = rec.TimestampAlloc, rec.TimestampAlloc
	} else {
		b.cur.PtrMin = min(b.cur.PtrMin, rec.Ptr)
		b.cur.PtrMax = max(b.cur.PtrMax, rec.Ptr)
		b.cur.SizeMin = min(b.cur.SizeMin, rec.Size)
		b.cur.SizeMax = max(b.cur.SizeMax, rec.Size)
		b.cur.TimestampMin = min(b.cur.TimestampMin, rec.TimestampAlloc)
		b.cur.TimestampMax = max(b.cur.TimestampMax, rec.TimestampAlloc)
	}

	b.threadBloom.Add(rec.ThreadID)
	if rec.TypeName != nil {
		b.typeBloom.Add(*rec.TypeName)
	}

	b.count++
	if int(b.count) >= b.batchSize {
		b.seal()
	}
}

func (b *quickFilterBuilder) seal() {
	b.cur.FirstRecord = b.first
	b.cur.RecordCount = b.count
	b.cur.ThreadBloom = b.threadBloom.Bytes()
	b.cur.TypeBloom = b.typeBloom.Bytes()
	b.batches = append(b.batches, b.cur)
	b.first += b.count
	b.reset()
}

func (b *quickFilterBuilder) finish() *QuickFilterData {
	if b.count > 0 {
		b.seal()
	}
	return &QuickFilterData{
		BatchSize:   uint32(b.batchSize),
		BloomParams: b.params,
		Batches:     b.batches,
	}
}
