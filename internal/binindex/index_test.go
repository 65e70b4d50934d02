package binindex

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/pkg/errors"
)

func TestCompactAllocationIndex_OffsetRoundTrip(t *testing.T) {
	idx := NewCompactAllocationIndex(100)

	offsets := []uint64{100, 150, 220, 1000}
	sizes := []int{50, 70, 780, 40}
	for i := range offsets {
		require.NoError(t, idx.AddRecord(offsets[i], sizes[i]))
	}

	require.Equal(t, uint32(len(offsets)), idx.Count)
	for i := range offsets {
		got, err := idx.RecordOffset(i)
		require.NoError(t, err)
		assert.Equal(t, offsets[i], got)

		size, err := idx.RecordSize(i)
		require.NoError(t, err)
		assert.Equal(t, uint16(sizes[i]), size)
	}
}

func TestCompactAllocationIndex_OffsetOverflow(t *testing.T) {
	idx := NewCompactAllocationIndex(0)

	err := idx.AddRecord(uint64(math.MaxUint32)+1, 10)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestCompactAllocationIndex_SizeOverflow(t *testing.T) {
	idx := NewCompactAllocationIndex(0)

	err := idx.AddRecord(0, math.MaxUint16+1)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestCompactAllocationIndex_MonotonicOffsets(t *testing.T) {
	idx := NewCompactAllocationIndex(0)

	require.NoError(t, idx.AddRecord(100, 10))
	err := idx.AddRecord(50, 10)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestCompactAllocationIndex_OffsetBeforeStart(t *testing.T) {
	idx := NewCompactAllocationIndex(1000)

	err := idx.AddRecord(500, 10)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestCompactAllocationIndex_OutOfRangeAccess(t *testing.T) {
	idx := NewCompactAllocationIndex(0)
	require.NoError(t, idx.AddRecord(0, 10))

	_, err := idx.RecordOffset(1)
	assert.Error(t, err)
	_, err = idx.RecordSize(-1)
	assert.Error(t, err)
}

func TestQuickFilterData_FailOpen(t *testing.T) {
	// A nil filter treats every batch as a candidate.
	var q *QuickFilterData
	assert.True(t, q.PtrMightBeInBatch(0, 42))
	assert.True(t, q.SizeRangeMightOverlapBatch(3, 0, 10))
	assert.True(t, q.TimestampMightBeInBatch(1, 7))
	assert.True(t, q.ThreadMightBeInBatch(0, "main"))
	assert.True(t, q.TypeMightBeInBatch(0, "Vec"))
	assert.Equal(t, 0, q.BatchCount())

	// Out-of-range batch indexes also fail open.
	q = &QuickFilterData{BatchSize: 10, BloomParams: DefaultBloomParams()}
	assert.True(t, q.PtrMightBeInBatch(5, 42))
	assert.True(t, q.ThreadMightBeInBatch(-1, "main"))
}

func TestQuickFilterData_RangeChecks(t *testing.T) {
	q := &QuickFilterData{
		BatchSize:   2,
		BloomParams: DefaultBloomParams(),
		Batches: []BatchFilter{
			{
				FirstRecord: 0, RecordCount: 2,
				PtrMin: 0x1000, PtrMax: 0x2000,
				SizeMin: 64, SizeMax: 1024,
				TimestampMin: 100, TimestampMax: 200,
			},
		},
	}

	assert.True(t, q.PtrMightBeInBatch(0, 0x1000))
	assert.True(t, q.PtrMightBeInBatch(0, 0x2000))
	assert.False(t, q.PtrMightBeInBatch(0, 0x0FFF))
	assert.False(t, q.PtrMightBeInBatch(0, 0x2001))

	assert.True(t, q.SizeRangeMightOverlapBatch(0, 1024, math.MaxUint64))
	assert.True(t, q.SizeRangeMightOverlapBatch(0, 0, 64))
	assert.False(t, q.SizeRangeMightOverlapBatch(0, 2000, math.MaxUint64))
	assert.False(t, q.SizeRangeMightOverlapBatch(0, 0, 63))

	assert.True(t, q.TimestampMightBeInBatch(0, 150))
	assert.False(t, q.TimestampMightBeInBatch(0, 99))

	first, end, ok := q.BatchBounds(0)
	require.True(t, ok)
	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(2), end)

	_, _, ok = q.BatchBounds(1)
	assert.False(t, ok)
}
