package binlog

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

func strPtr(s string) *string { return &s }
func u64Ptr(v uint64) *uint64 { return &v }

func sampleRecords() []*model.AllocationRecord {
	return []*model.AllocationRecord{
		{
			Ptr:            0x1000,
			Size:           64,
			VarName:        strPtr("buffer"),
			TypeName:       strPtr("Vec<u8>"),
			ScopeName:      strPtr("main"),
			ThreadID:       "main",
			TimestampAlloc: 100,
			BorrowCount:    2,
		},
		{
			Ptr:              0x2000,
			Size:             1024,
			TypeName:         strPtr("Vec<u8>"),
			ThreadID:         "worker-1",
			TimestampAlloc:   200,
			TimestampDealloc: u64Ptr(500),
			LifetimeMs:       u64Ptr(300),
			StackTrace:       []string{"alloc", "main"},
			IsLeaked:         true,
			SmartPointerInfo: json.RawMessage(`{"kind":"rc","strong":2}`),
		},
		{
			Ptr:            0x3000,
			Size:           32,
			ThreadID:       "main",
			TimestampAlloc: 300,
			MemoryLayout:   json.RawMessage(`{"align":8}`),
			RuntimeState:   json.RawMessage(`{"phase":"steady"}`),
		},
	}
}

func writeTestLog(t *testing.T, records []*model.AllocationRecord, table *StringTable) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.bin")
	w, err := NewWriter(path, table)
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())
	return path
}

func TestRoundTrip_NoTable(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	parser := NewParser(nil)
	got, err := parser.LoadAllocations(path)
	require.NoError(t, err)
	require.Len(t, got, len(records))

	for i := range records {
		assert.Equal(t, records[i], got[i], "record %d", i)
	}
}

func TestRoundTrip_WithTable(t *testing.T) {
	records := sampleRecords()

	table := NewStringTable()
	_, err := table.Add("Vec<u8>")
	require.NoError(t, err)
	_, err = table.Add("main")
	require.NoError(t, err)

	path := writeTestLog(t, records, table)

	parser := NewParser(nil)
	got, err := parser.LoadAllocations(path)
	require.NoError(t, err)
	require.Len(t, got, len(records))

	for i := range records {
		assert.Equal(t, records[i], got[i], "record %d", i)
	}
}

func TestWriter_BackpatchesRecordCount(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	scanner, err := OpenScanner(path)
	require.NoError(t, err)
	defer scanner.Close()

	assert.Equal(t, uint32(len(records)), scanner.Header().RecordCount)
}

func TestScanner_OffsetsAndSizes(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	scanner, err := OpenScanner(path)
	require.NoError(t, err)
	defer scanner.Close()

	prevEnd := scanner.RecordsStart()
	count := 0
	for {
		scanned, err := scanner.Next()
		require.NoError(t, err)
		if scanned == nil {
			break
		}
		// Records are contiguous in write order.
		assert.Equal(t, prevEnd, scanned.Offset)
		prevEnd = scanned.Offset + uint64(scanned.Size)
		count++
	}
	assert.Equal(t, len(records), count)
	assert.LessOrEqual(t, prevEnd, uint64(scanner.FileSize()))
}

func TestScanner_TruncatedFile(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-10], 0o644))

	parser := NewParser(nil)
	_, err = parser.LoadAllocations(path)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err), "got %v", err)
}

func TestScanner_RecordCountMismatch(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	// Claim one more record than the file holds.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[12:], uint32(len(records))+1)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	parser := NewParser(nil)
	_, err = parser.LoadAllocations(path)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err), "got %v", err)
}

func TestScanner_OversizedValueLength(t *testing.T) {
	records := sampleRecords()
	path := writeTestLog(t, records, nil)

	scanner, err := OpenScanner(path)
	require.NoError(t, err)
	start := scanner.RecordsStart()
	require.NoError(t, scanner.Close())

	// Corrupt the first record's declared value length to nearly 4 GiB.
	// The scanner must reject it against the file size, not allocate it.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[start+1:], 0xFFFFFFF0)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = NewParser(nil).LoadAllocations(path)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err), "got %v", err)
}

func TestDecodeRecordValue_OverstatedFrameCount(t *testing.T) {
	base := &model.AllocationRecord{Ptr: 0x10, Size: 32, ThreadID: "main", TimestampAlloc: 7}
	withStack := *base
	withStack.StackTrace = []string{"alloc", "main"}

	plain, err := EncodeRecordValue(base, nil)
	require.NoError(t, err)
	value, err := EncodeRecordValue(&withStack, nil)
	require.NoError(t, err)

	// The two encodings diverge at the stack presence flag; the declared
	// frame count is the u32 right behind it.
	flagPos := 0
	for flagPos < len(plain) && plain[flagPos] == value[flagPos] {
		flagPos++
	}
	require.Less(t, flagPos+5, len(value))
	binary.LittleEndian.PutUint32(value[flagPos+1:], 0xFFFFFF00)

	_, err = DecodeRecordValue(value, nil)
	require.Error(t, err)
	assert.True(t, errors.IsSerializationError(err), "got %v", err)
}

func TestDecodeHeader_BadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOTALOGX\x01\x00\x00\x00\x00\x00\x00\x00"), 0o644))

	_, err := OpenScanner(path)
	require.Error(t, err)
	assert.True(t, errors.IsCorruptedData(err))
}

func TestDecodeRecordValue_Truncated(t *testing.T) {
	rec := sampleRecords()[1]
	value, err := EncodeRecordValue(rec, nil)
	require.NoError(t, err)

	_, err = DecodeRecordValue(value[:len(value)-4], nil)
	require.Error(t, err)
	assert.True(t, errors.IsSerializationError(err), "got %v", err)
}

func TestDecodeRecordValue_TrailingBytes(t *testing.T) {
	rec := sampleRecords()[0]
	value, err := EncodeRecordValue(rec, nil)
	require.NoError(t, err)

	_, err = DecodeRecordValue(append(value, 0xFF), nil)
	require.Error(t, err)
	assert.True(t, errors.IsSerializationError(err))
}

func TestEmptyLog(t *testing.T) {
	path := writeTestLog(t, nil, nil)

	parser := NewParser(nil)
	got, err := parser.LoadAllocations(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScanner_MetricsRegionAbsent(t *testing.T) {
	path := writeTestLog(t, sampleRecords(), nil)

	scanner, err := OpenScanner(path)
	require.NoError(t, err)
	defer scanner.Close()

	for {
		scanned, err := scanner.Next()
		require.NoError(t, err)
		if scanned == nil {
			break
		}
	}

	region, err := scanner.ReadMetricsRegion()
	require.NoError(t, err)
	assert.Nil(t, region)
}

func TestStringTable_EncodeDecodeSegment(t *testing.T) {
	table := NewStringTable()
	for _, s := range []string{"alpha", "beta", "gamma"} {
		_, err := table.Add(s)
		require.NoError(t, err)
	}

	path := writeTestLog(t, sampleRecords(), table)

	scanner, err := OpenScanner(path)
	require.NoError(t, err)
	defer scanner.Close()

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, scanner.Table().Strings())
	region := scanner.StringTableRegion()
	assert.True(t, region.Present())
	assert.Equal(t, uint32(3), region.StringCount)
	assert.Equal(t, uint64(HeaderSize), region.Offset)
}
