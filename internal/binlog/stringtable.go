package binlog

import (
	"io"
	"sort"

	"github.com/alloctrace/pkg/compression"
	"github.com/alloctrace/pkg/errors"
)

// maxTableStrings is the capacity of the 16-bit reference space. The
// table-ref escape value itself is excluded from the usable range.
const maxTableStrings = 65535

// inlineLengthPrefixSize is what an inline string occurrence costs in
// length-prefix overhead, used by the savings accounting.
const inlineLengthPrefixSize = 4

// tableRefSize is the encoded size of a string-table reference
// (u32 escape marker + u16 index).
const tableRefSize = 6

// StringTable deduplicates repeated strings behind 16-bit references.
// A given string always maps to the same index for the lifetime of the
// table. Adding beyond 65,535 unique strings is a hard error.
type StringTable struct {
	strings []string
	index   map[string]uint16
}

// NewStringTable creates an empty string table.
func NewStringTable() *StringTable {
	return &StringTable{
		index: make(map[string]uint16),
	}
}

// Add inserts a string and returns its index. Adding an existing string
// is idempotent: it returns the original index without growing the table.
func (t *StringTable) Add(s string) (uint16, error) {
	if idx, ok := t.index[s]; ok {
		return idx, nil
	}
	if len(t.strings) >= maxTableStrings {
		return 0, errors.Newf(errors.CodeResourceExhausted,
			"string table full: %d unique strings exceed the 16-bit reference space", len(t.strings)+1)
	}
	idx := uint16(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx, nil
}

// Lookup returns the index of s if it was admitted to the table.
func (t *StringTable) Lookup(s string) (uint16, bool) {
	idx, ok := t.index[s]
	return idx, ok
}

// Get returns the string at the given index.
func (t *StringTable) Get(idx uint16) (string, error) {
	if int(idx) >= len(t.strings) {
		return "", errors.Newf(errors.CodeCorruptedData,
			"string table reference %d out of range (table has %d entries)", idx, len(t.strings))
	}
	return t.strings[idx], nil
}

// Len returns the number of unique strings in the table.
func (t *StringTable) Len() int {
	return len(t.strings)
}

// Strings returns the table contents in index order.
func (t *StringTable) Strings() []string {
	return t.strings
}

// encode writes the string table segment: marker, byte size, compression
// flag, string count and the length-prefixed strings. An empty table is
// written as the "NONE" marker only.
func (t *StringTable) encode(w io.Writer, comp compression.Compressor) (*StringTableRegion, error) {
	if t == nil || len(t.strings) == 0 {
		if _, err := w.Write([]byte(noTableMarker)); err != nil {
			return nil, errors.Wrap(errors.CodeIOError, "failed to write string table marker", err)
		}
		return &StringTableRegion{Offset: HeaderSize, ByteLength: 4}, nil
	}

	payload := make([]byte, 0, 64*len(t.strings))
	for _, s := range t.strings {
		if len(s) > maxInlineStringLen {
			return nil, errors.Newf(errors.CodeSerializationError,
				"string of %d bytes exceeds the encodable length", len(s))
		}
		var lp [2]byte
		lp[0] = byte(len(s))
		lp[1] = byte(len(s) >> 8)
		payload = append(payload, lp[:]...)
		payload = append(payload, s...)
	}

	compType := compression.TypeNone
	if comp != nil {
		compressed, err := comp.Compress(payload)
		if err != nil {
			return nil, errors.Wrap(errors.CodeSerializationError, "failed to compress string table", err)
		}
		// Only keep compression when it actually shrinks the payload.
		if len(compressed) < len(payload) {
			payload = compressed
			compType = comp.Type()
		}
	}

	if _, err := w.Write([]byte(stringTableMarker)); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write string table marker", err)
	}
	if err := writeU32(w, uint32(len(payload))); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write string table size", err)
	}
	if _, err := w.Write([]byte{byte(compType)}); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write string table compression flag", err)
	}
	if err := writeU32(w, uint32(len(t.strings))); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write string table count", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to write string table payload", err)
	}

	return &StringTableRegion{
		Offset:      HeaderSize,
		ByteLength:  uint64(4 + 4 + 1 + 4 + len(payload)),
		StringCount: uint32(len(t.strings)),
		Compression: uint8(compType),
	}, nil
}

// decodeStringTable reads the string table segment that follows the header.
func decodeStringTable(r io.Reader) (*StringTable, *StringTableRegion, error) {
	marker := make([]byte, 4)
	if _, err := io.ReadFull(r, marker); err != nil {
		return nil, nil, errors.Wrap(errors.CodeCorruptedData, "file too short for string table marker", err)
	}
	switch string(marker) {
	case noTableMarker:
		return NewStringTable(), &StringTableRegion{Offset: HeaderSize, ByteLength: 4}, nil
	case stringTableMarker:
	default:
		return nil, nil, errors.Newf(errors.CodeCorruptedData, "bad string table marker %q", marker)
	}

	payloadSize, err := readU32(r)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeCorruptedData, "truncated string table size", err)
	}
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, nil, errors.Wrap(errors.CodeCorruptedData, "truncated string table compression flag", err)
	}
	count, err := readU32(r)
	if err != nil {
		return nil, nil, errors.Wrap(errors.CodeCorruptedData, "truncated string table count", err)
	}
	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, nil, errors.Wrap(errors.CodeCorruptedData, "truncated string table payload", err)
	}

	compType := compression.Type(flag[0])
	if compType != compression.TypeNone {
		comp, err := compression.New(compType, compression.LevelDefault)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeCorruptedData, "unknown string table compression", err)
		}
		defer compression.Close(comp)
		payload, err = comp.Decompress(payload)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeCorruptedData, "failed to decompress string table", err)
		}
	}

	table := NewStringTable()
	pos := 0
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(payload) {
			return nil, nil, errors.Newf(errors.CodeCorruptedData,
				"string table payload truncated at entry %d", i)
		}
		length := int(payload[pos]) | int(payload[pos+1])<<8
		pos += 2
		if pos+length > len(payload) {
			return nil, nil, errors.Newf(errors.CodeCorruptedData,
				"string table entry %d overruns payload", i)
		}
		if _, err := table.Add(string(payload[pos : pos+length])); err != nil {
			return nil, nil, err
		}
		pos += length
	}

	region := &StringTableRegion{
		Offset:      HeaderSize,
		ByteLength:  uint64(4 + 4 + 1 + 4 + payloadSize),
		StringCount: count,
		Compression: flag[0],
	}
	return table, region, nil
}

// BuilderStats reports string table construction diagnostics.
type BuilderStats struct {
	// UniqueStrings is the number of distinct strings observed.
	UniqueStrings int
	// AdmittedStrings is how many met the frequency threshold.
	AdmittedStrings int
	// TotalOccurrences counts every recorded occurrence.
	TotalOccurrences int
	// BytesSaved is the estimated encoding saving from table references,
	// summed over admitted strings. Informational only.
	BytesSaved int64
}

// StringTableBuilder builds a table in two passes: a recording pass that
// tallies occurrence frequency, then Build admits only strings meeting the
// minimum frequency. Singleton strings stay inline in their records since a
// table entry would cost more than a single occurrence.
type StringTableBuilder struct {
	freq         map[string]int
	occurrences  int
	minFrequency int
}

// MinFrequencyForRecords returns the admission threshold tuned to the log
// size: large logs raise the bar so the table holds only hot strings.
func MinFrequencyForRecords(recordCount int) int {
	if recordCount > 1000 {
		return 3
	}
	return 2
}

// NewStringTableBuilder creates a builder with the given admission
// frequency. Values below 2 are raised to 2.
func NewStringTableBuilder(minFrequency int) *StringTableBuilder {
	if minFrequency < 2 {
		minFrequency = 2
	}
	return &StringTableBuilder{
		freq:         make(map[string]int),
		minFrequency: minFrequency,
	}
}

// Record tallies one occurrence of s.
func (b *StringTableBuilder) Record(s string) {
	if s == "" {
		return
	}
	b.freq[s]++
	b.occurrences++
}

// RecordOptional tallies s when present.
func (b *StringTableBuilder) RecordOptional(s *string) {
	if s != nil {
		b.Record(*s)
	}
}

// Build produces the final table from the recorded frequencies.
func (b *StringTableBuilder) Build() (*StringTable, *BuilderStats, error) {
	admitted := make([]string, 0, len(b.freq))
	for s, n := range b.freq {
		if n >= b.minFrequency {
			admitted = append(admitted, s)
		}
	}
	// Deterministic table layout regardless of map iteration order.
	sort.Strings(admitted)

	stats := &BuilderStats{
		UniqueStrings:    len(b.freq),
		TotalOccurrences: b.occurrences,
	}

	table := NewStringTable()
	for _, s := range admitted {
		if _, err := table.Add(s); err != nil {
			return nil, nil, err
		}
		n := b.freq[s]
		costWithout := int64(n) * int64(len(s)+inlineLengthPrefixSize)
		costWith := int64(2+len(s)) + int64(n)*tableRefSize
		if saving := costWithout - costWith; saving > 0 {
			stats.BytesSaved += saving
		}
	}
	stats.AdmittedStrings = table.Len()
	return table, stats, nil
}
