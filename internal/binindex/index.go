package binindex

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/errors"
)

// IndexFormatVersion is bumped whenever the serialized index layout
// changes; cached indexes with another version are rebuilt.
const IndexFormatVersion uint32 = 1

// CompactAllocationIndex stores, per record, a 32-bit offset relative to
// the start of the record segment and a 16-bit byte length. Relative
// offsets halve the array footprint versus absolute 64-bit offsets for
// logs up to 4 GiB of record data.
type CompactAllocationIndex struct {
	Count              uint32           `json:"count"`
	RecordsStartOffset uint64           `json:"records_start_offset"`
	RelativeOffsets    []uint32         `json:"relative_offsets"`
	RecordSizes        []uint16         `json:"record_sizes"`
	QuickFilter        *QuickFilterData `json:"quick_filter,omitempty"`
}

// NewCompactAllocationIndex creates an empty index for a record segment
// beginning at recordsStart.
func NewCompactAllocationIndex(recordsStart uint64) *CompactAllocationIndex {
	return &CompactAllocationIndex{RecordsStartOffset: recordsStart}
}

// AddRecord appends one record's position. The absolute offset must be
// non-decreasing in call order. Offsets beyond the 32-bit relative range
// and sizes beyond 16 bits are hard errors, never silently truncated.
func (idx *CompactAllocationIndex) AddRecord(absOffset uint64, size int) error {
	if absOffset < idx.RecordsStartOffset {
		return errors.Newf(errors.CodeCorruptedData,
			"record offset %d precedes record segment start %d", absOffset, idx.RecordsStartOffset)
	}
	rel := absOffset - idx.RecordsStartOffset
	if rel > math.MaxUint32 {
		return errors.Newf(errors.CodeCorruptedData,
			"relative offset %d exceeds the 32-bit index range (max 4 GiB of record data)", rel)
	}
	if size < 0 || size > math.MaxUint16 {
		return errors.Newf(errors.CodeCorruptedData,
			"record size %d exceeds the 16-bit index range (max 64 KiB per record)", size)
	}
	if n := len(idx.RelativeOffsets); n > 0 && uint32(rel) < idx.RelativeOffsets[n-1] {
		return errors.Newf(errors.CodeCorruptedData,
			"record offset %d breaks monotonic write order", absOffset)
	}

	idx.RelativeOffsets = append(idx.RelativeOffsets, uint32(rel))
	idx.RecordSizes = append(idx.RecordSizes, uint16(size))
	idx.Count++
	return nil
}

// RecordOffset returns record i's absolute byte offset in the source file.
func (idx *CompactAllocationIndex) RecordOffset(i int) (uint64, error) {
	if i < 0 || i >= int(idx.Count) {
		return 0, errors.Newf(errors.CodeInvalidInput, "record index %d out of range (count %d)", i, idx.Count)
	}
	return idx.RecordsStartOffset + uint64(idx.RelativeOffsets[i]), nil
}

// RecordSize returns record i's total encoded byte length.
func (idx *CompactAllocationIndex) RecordSize(i int) (uint16, error) {
	if i < 0 || i >= int(idx.Count) {
		return 0, errors.Newf(errors.CodeInvalidInput, "record index %d out of range (count %d)", i, idx.Count)
	}
	return idx.RecordSizes[i], nil
}

// BatchFilter holds one batch's exact value ranges and serialized bloom
// filters. Range checks are exact; bloom checks may false-positive.
type BatchFilter struct {
	FirstRecord uint32 `json:"first_record"`
	RecordCount uint32 `json:"record_count"`

	PtrMin       uint64 `json:"ptr_min"`
	PtrMax       uint64 `json:"ptr_max"`
	SizeMin      uint64 `json:"size_min"`
	SizeMax      uint64 `json:"size_max"`
	TimestampMin uint64 `json:"timestamp_min"`
	TimestampMax uint64 `json:"timestamp_max"`

	ThreadBloom []byte `json:"thread_bloom"`
	TypeBloom   []byte `json:"type_bloom"`
}

// QuickFilterData is the batch-granular pre-filter attached to an index.
// All membership checks fail open: when a batch or the whole filter is
// absent, every batch is a candidate.
type QuickFilterData struct {
	BatchSize   uint32            `json:"batch_size"`
	BloomParams BloomFilterParams `json:"bloom_params"`
	Batches     []BatchFilter     `json:"batches"`
}

// BatchCount returns the number of batches.
func (q *QuickFilterData) BatchCount() int {
	if q == nil {
		return 0
	}
	return len(q.Batches)
}

// BatchBounds returns the half-open record index range [first, first+count)
// covered by batch i.
func (q *QuickFilterData) BatchBounds(i int) (uint32, uint32, bool) {
	if q == nil || i < 0 || i >= len(q.Batches) {
		return 0, 0, false
	}
	b := q.Batches[i]
	return b.FirstRecord, b.FirstRecord + b.RecordCount, true
}

func (q *QuickFilterData) batch(i int) *BatchFilter {
	if q == nil || i < 0 || i >= len(q.Batches) {
		return nil
	}
	return &q.Batches[i]
}

// PtrMightBeInBatch reports whether a record with the given pointer could
// live in batch i. Exact range containment, no false negatives.
func (q *QuickFilterData) PtrMightBeInBatch(i int, ptr uint64) bool {
	b := q.batch(i)
	if b == nil || b.RecordCount == 0 {
		return true
	}
	return ptr >= b.PtrMin && ptr <= b.PtrMax
}

// SizeRangeMightOverlapBatch reports whether any record in batch i could
// have a size within [min, max].
func (q *QuickFilterData) SizeRangeMightOverlapBatch(i int, min, max uint64) bool {
	b := q.batch(i)
	if b == nil || b.RecordCount == 0 {
		return true
	}
	return max >= b.SizeMin && min <= b.SizeMax
}

// TimestampMightBeInBatch reports whether a record with the given alloc
// timestamp could live in batch i.
func (q *QuickFilterData) TimestampMightBeInBatch(i int, ts uint64) bool {
	b := q.batch(i)
	if b == nil || b.RecordCount == 0 {
		return true
	}
	return ts >= b.TimestampMin && ts <= b.TimestampMax
}

// ThreadMightBeInBatch reports whether the thread id may appear in batch i.
func (q *QuickFilterData) ThreadMightBeInBatch(i int, thread string) bool {
	b := q.batch(i)
	if b == nil || len(b.ThreadBloom) == 0 {
		return true
	}
	return BloomFilterFromBytes(b.ThreadBloom, q.BloomParams).MightContain(thread)
}

// TypeMightBeInBatch reports whether the type name may appear in batch i.
func (q *QuickFilterData) TypeMightBeInBatch(i int, typeName string) bool {
	b := q.batch(i)
	if b == nil || len(b.TypeBloom) == 0 {
		return true
	}
	return BloomFilterFromBytes(b.TypeBloom, q.BloomParams).MightContain(typeName)
}

// BinaryIndex is the immutable index over one binary log, identified by
// source path plus content hash so a rewritten file invalidates it.
type BinaryIndex struct {
	FormatVersion     uint32 `json:"format_version"`
	SourceFilePath    string `json:"source_file_path"`
	SourceContentHash uint64 `json:"source_content_hash"`
	SourceFileSize    int64  `json:"source_file_size"`

	Header            binlog.Header                 `json:"header"`
	StringTableRegion binlog.StringTableRegion      `json:"string_table_region"`
	Allocations       *CompactAllocationIndex       `json:"allocations"`
	AdvancedMetrics   *binlog.AdvancedMetricsRegion `json:"advanced_metrics_region,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MatchesQuickFilterParams reports whether this index was built with the
// given quick-filter threshold and batch size. The parameters are not
// stored directly, but they fully determine the filter's shape: presence
// follows from count vs threshold, granularity from the batch size.
func (idx *BinaryIndex) MatchesQuickFilterParams(threshold uint32, batchSize int) bool {
	if idx.Allocations == nil {
		return false
	}
	qf := idx.Allocations.QuickFilter
	wantFilter := idx.Allocations.Count > threshold
	if !wantFilter {
		return qf == nil
	}
	return qf != nil && qf.BatchSize == uint32(batchSize)
}

// ContentHash computes the xxhash of a file's contents.
func ContentHash(path string) (uint64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(errors.CodeIOError, "failed to open file for hashing "+path, err)
	}
	defer file.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return 0, errors.Wrap(errors.CodeIOError, "failed to hash file "+path, err)
	}
	return h.Sum64(), nil
}

// IsValidForFile reports whether the index still describes the file at
// path: the path, size and content hash must all match.
func (idx *BinaryIndex) IsValidForFile(path string) (bool, error) {
	if idx.SourceFilePath != path {
		return false, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, errors.Wrap(errors.CodeIOError, "failed to stat file "+path, err)
	}
	if info.Size() != idx.SourceFileSize {
		return false, nil
	}
	hash, err := ContentHash(path)
	if err != nil {
		return false, err
	}
	return hash == idx.SourceContentHash, nil
}

// Validate checks internal invariants after deserialization.
func (idx *BinaryIndex) Validate() error {
	if idx.Allocations == nil {
		return errors.New(errors.CodeCorruptedData, "index has no allocation section")
	}
	a := idx.Allocations
	if int(a.Count) != len(a.RelativeOffsets) || int(a.Count) != len(a.RecordSizes) {
		return errors.Newf(errors.CodeCorruptedData,
			"index count %d does not match offsets %d / sizes %d",
			a.Count, len(a.RelativeOffsets), len(a.RecordSizes))
	}
	if a.Count != idx.Header.RecordCount {
		return errors.Newf(errors.CodeCorruptedData,
			"index count %d does not match header record count %d", a.Count, idx.Header.RecordCount)
	}
	for i := 1; i < len(a.RelativeOffsets); i++ {
		if a.RelativeOffsets[i] < a.RelativeOffsets[i-1] {
			return errors.Newf(errors.CodeCorruptedData, "index offsets not monotonic at %d", i)
		}
	}
	return nil
}
