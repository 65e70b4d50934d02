package binlog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/utils"
)

// ScannedRecord is one record located by a Scanner: its absolute offset,
// total encoded size (including the TLV envelope) and raw value bytes.
type ScannedRecord struct {
	Offset uint64
	Size   int
	Value  []byte
}

// Scanner walks a binary log sequentially: header, string table, then one
// record at a time. It is the single forward pass used by both the parser
// and the index builder.
type Scanner struct {
	file         *os.File
	r            *bufio.Reader
	header       *Header
	table        *StringTable
	region       *StringTableRegion
	recordsStart uint64
	fileSize     int64
	offset       uint64
	read         uint32
}

// OpenScanner opens a log and decodes the header and string table segment.
func OpenScanner(path string) (*Scanner, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to open log file "+path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(errors.CodeIOError, "failed to stat log file "+path, err)
	}

	r := bufio.NewReaderSize(file, 64*1024)
	header, err := DecodeHeader(r)
	if err != nil {
		file.Close()
		return nil, err
	}
	table, region, err := decodeStringTable(r)
	if err != nil {
		file.Close()
		return nil, err
	}

	recordsStart := uint64(HeaderSize) + region.ByteLength
	return &Scanner{
		file:         file,
		r:            r,
		header:       header,
		table:        table,
		region:       region,
		recordsStart: recordsStart,
		fileSize:     info.Size(),
		offset:       recordsStart,
	}, nil
}

// Header returns the decoded file header.
func (s *Scanner) Header() *Header { return s.header }

// Table returns the decoded string table (empty if the log has none).
func (s *Scanner) Table() *StringTable { return s.table }

// StringTableRegion returns the table segment descriptor.
func (s *Scanner) StringTableRegion() *StringTableRegion { return s.region }

// RecordsStart returns the absolute offset where record data begins.
func (s *Scanner) RecordsStart() uint64 { return s.recordsStart }

// FileSize returns the log's size in bytes.
func (s *Scanner) FileSize() int64 { return s.fileSize }

// Next returns the next record, or (nil, nil) once the declared record
// count has been consumed. A file ending before the declared count is a
// corrupted-data error naming expected and observed sizes.
func (s *Scanner) Next() (*ScannedRecord, error) {
	if s.read >= s.header.RecordCount {
		return nil, nil
	}

	envelope := make([]byte, recordEnvelopeSize)
	if _, err := io.ReadFull(s.r, envelope); err != nil {
		return nil, errors.Wrapf(errors.CodeCorruptedData,
			"log truncated at record %d/%d: header declares more records than file size %d holds",
			err, s.read, s.header.RecordCount, s.fileSize)
	}
	if envelope[0] != RecordTypeAllocation {
		return nil, errors.Newf(errors.CodeCorruptedData,
			"unexpected record type 0x%02X at offset %d", envelope[0], s.offset)
	}
	valueLen := binary.LittleEndian.Uint32(envelope[1:])
	if remaining := uint64(s.fileSize) - s.offset - recordEnvelopeSize; uint64(valueLen) > remaining {
		// Validate before allocating: a corrupt length field must not
		// provoke a near-4GiB buffer.
		return nil, errors.Newf(errors.CodeCorruptedData,
			"record %d at offset %d declares %d value bytes but only %d remain in file",
			s.read, s.offset, valueLen, remaining)
	}

	value := make([]byte, valueLen)
	if _, err := io.ReadFull(s.r, value); err != nil {
		return nil, errors.Wrapf(errors.CodeCorruptedData,
			"log truncated inside record %d/%d: expected %d value bytes",
			err, s.read, s.header.RecordCount, valueLen)
	}

	rec := &ScannedRecord{
		Offset: s.offset,
		Size:   recordEnvelopeSize + int(valueLen),
		Value:  value,
	}
	s.offset += uint64(rec.Size)
	s.read++
	return rec, nil
}

// MetricEntry locates one metric's payload inside the advanced metrics
// segment.
type MetricEntry struct {
	Name       string `json:"name"`
	Offset     uint64 `json:"offset"`
	Size       uint64 `json:"size"`
	EntryCount uint32 `json:"entry_count"`
}

// AdvancedMetricsRegion is the optional trailing segment descriptor: a
// bitmap of present metric kinds plus a per-metric sub-index.
type AdvancedMetricsRegion struct {
	Offset  uint64        `json:"offset"`
	Bitmap  uint32        `json:"bitmap"`
	Metrics []MetricEntry `json:"metrics"`
}

// ReadMetricsRegion decodes the advanced metrics segment if the log carries
// one. Must be called after Next has consumed all records. Returns nil when
// the segment is absent.
func (s *Scanner) ReadMetricsRegion() (*AdvancedMetricsRegion, error) {
	if s.read < s.header.RecordCount {
		return nil, errors.New(errors.CodeInvalidInput, "records not fully consumed before metrics segment")
	}

	marker := make([]byte, 4)
	if _, err := io.ReadFull(s.r, marker); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metrics marker", err)
	}
	if string(marker) != metricsMarker {
		return nil, errors.Newf(errors.CodeCorruptedData, "bad metrics segment marker %q", marker)
	}

	region := &AdvancedMetricsRegion{Offset: s.offset}
	bitmap, err := readU32(s.r)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metrics bitmap", err)
	}
	region.Bitmap = bitmap

	count, err := readU32(s.r)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metrics count", err)
	}
	for i := uint32(0); i < count; i++ {
		nameLen, err := readU32(s.r)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metric name length", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(s.r, name); err != nil {
			return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metric name", err)
		}
		offset, err := readU64(s.r)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metric offset", err)
		}
		size, err := readU64(s.r)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metric size", err)
		}
		entries, err := readU32(s.r)
		if err != nil {
			return nil, errors.Wrap(errors.CodeCorruptedData, "truncated metric entry count", err)
		}
		region.Metrics = append(region.Metrics, MetricEntry{
			Name:       string(name),
			Offset:     offset,
			Size:       size,
			EntryCount: entries,
		})
	}
	return region, nil
}

// Close releases the underlying file.
func (s *Scanner) Close() error {
	return s.file.Close()
}

// Parser decodes complete binary logs into allocation records.
type Parser struct {
	logger utils.Logger
}

// NewParser creates a parser. A nil logger falls back to the null logger.
func NewParser(logger utils.Logger) *Parser {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Parser{logger: logger}
}

// LoadAllocations decodes every record in the log, in write order. Any
// decode failure fails the whole load; records are never silently skipped.
func (p *Parser) LoadAllocations(path string) ([]*model.AllocationRecord, error) {
	scanner, err := OpenScanner(path)
	if err != nil {
		return nil, err
	}
	defer scanner.Close()

	header := scanner.Header()
	p.logger.Debug("loading %d allocations from %s", header.RecordCount, path)

	records := make([]*model.AllocationRecord, 0, header.RecordCount)
	for {
		scanned, err := scanner.Next()
		if err != nil {
			return nil, err
		}
		if scanned == nil {
			break
		}
		rec, err := DecodeRecordValue(scanned.Value, scanner.Table())
		if err != nil {
			return nil, errors.Wrapf(errors.CodeSerializationError,
				"failed to decode record %d at offset %d", err, len(records), scanned.Offset)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeRecord decodes one complete TLV record: envelope (type byte and
// value length) plus value. Used by index-driven readers that slice records
// out of a larger span by offset and size.
func DecodeRecord(data []byte, table *StringTable) (*model.AllocationRecord, error) {
	if len(data) < recordEnvelopeSize {
		return nil, errors.Newf(errors.CodeCorruptedData, "record slice of %d bytes is too short", len(data))
	}
	if data[0] != RecordTypeAllocation {
		return nil, errors.Newf(errors.CodeCorruptedData, "unexpected record type 0x%02X", data[0])
	}
	valueLen := binary.LittleEndian.Uint32(data[1:])
	if int(valueLen)+recordEnvelopeSize != len(data) {
		return nil, errors.Newf(errors.CodeCorruptedData,
			"record slice of %d bytes does not match declared value length %d", len(data), valueLen)
	}
	return DecodeRecordValue(data[recordEnvelopeSize:], table)
}

// valueReader is a bounds-checked cursor over one record's value bytes.
type valueReader struct {
	data []byte
	pos  int
}

func (r *valueReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *valueReader) need(n int) error {
	if r.pos+n > len(r.data) {
		return errors.Newf(errors.CodeSerializationError,
			"record value truncated: need %d bytes at position %d of %d", n, r.pos, len(r.data))
	}
	return nil
}

func (r *valueReader) u8() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *valueReader) u16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *valueReader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *valueReader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *valueReader) bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// str reads a required string: either a table reference or an inline
// length-prefixed sequence.
func (r *valueReader) str(table *StringTable) (string, error) {
	marker, err := r.u32()
	if err != nil {
		return "", err
	}
	if marker == tableRefMarker {
		idx, err := r.u16()
		if err != nil {
			return "", err
		}
		return table.Get(idx)
	}
	if marker > maxInlineStringLen {
		return "", errors.Newf(errors.CodeSerializationError, "bad inline string length %d", marker)
	}
	b, err := r.bytes(int(marker))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// optStr reads an optional string; the none marker decodes to nil.
func (r *valueReader) optStr(table *StringTable) (*string, error) {
	marker, err := r.u32()
	if err != nil {
		return nil, err
	}
	if marker == noneMarker {
		return nil, nil
	}
	var s string
	if marker == tableRefMarker {
		idx, err := r.u16()
		if err != nil {
			return nil, err
		}
		s, err = table.Get(idx)
		if err != nil {
			return nil, err
		}
	} else {
		if marker > maxInlineStringLen {
			return nil, errors.Newf(errors.CodeSerializationError, "bad inline string length %d", marker)
		}
		b, err := r.bytes(int(marker))
		if err != nil {
			return nil, err
		}
		s = string(b)
	}
	return &s, nil
}

// DecodeRecordValue decodes one record's value bytes into an allocation
// record. The table resolves string references written by the encoder.
func DecodeRecordValue(value []byte, table *StringTable) (*model.AllocationRecord, error) {
	r := &valueReader{data: value}
	rec := &model.AllocationRecord{}
	var err error

	if rec.Ptr, err = r.u64(); err != nil {
		return nil, err
	}
	if rec.Size, err = r.u64(); err != nil {
		return nil, err
	}
	if rec.TimestampAlloc, err = r.u64(); err != nil {
		return nil, err
	}

	deallocFlag, err := r.u8()
	if err != nil {
		return nil, err
	}
	if deallocFlag == 1 {
		ts, err := r.u64()
		if err != nil {
			return nil, err
		}
		rec.TimestampDealloc = &ts
	}

	if rec.VarName, err = r.optStr(table); err != nil {
		return nil, err
	}
	if rec.TypeName, err = r.optStr(table); err != nil {
		return nil, err
	}
	if rec.ScopeName, err = r.optStr(table); err != nil {
		return nil, err
	}
	if rec.ThreadID, err = r.str(table); err != nil {
		return nil, err
	}

	stackFlag, err := r.u8()
	if err != nil {
		return nil, err
	}
	if stackFlag == 1 {
		frames, err := r.u32()
		if err != nil {
			return nil, err
		}
		// Each frame encodes at least a 4-byte marker; a count the
		// remaining bytes cannot hold is corrupt, not a huge alloc.
		if frames > uint32(r.remaining()/4) {
			return nil, errors.Newf(errors.CodeSerializationError,
				"stack trace declares %d frames but only %d value bytes remain", frames, r.remaining())
		}
		rec.StackTrace = make([]string, 0, frames)
		for i := uint32(0); i < frames; i++ {
			frame, err := r.str(table)
			if err != nil {
				return nil, err
			}
			rec.StackTrace = append(rec.StackTrace, frame)
		}
	}

	if rec.BorrowCount, err = r.u32(); err != nil {
		return nil, err
	}
	leaked, err := r.u8()
	if err != nil {
		return nil, err
	}
	rec.IsLeaked = leaked == 1

	lifetimeFlag, err := r.u8()
	if err != nil {
		return nil, err
	}
	if lifetimeFlag == 1 {
		ms, err := r.u64()
		if err != nil {
			return nil, err
		}
		rec.LifetimeMs = &ms
	}

	exts := make([]json.RawMessage, 4)
	for i := range exts {
		flag, err := r.u8()
		if err != nil {
			return nil, err
		}
		if flag != 1 {
			continue
		}
		extLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		b, err := r.bytes(int(extLen))
		if err != nil {
			return nil, err
		}
		ext := make(json.RawMessage, len(b))
		copy(ext, b)
		exts[i] = ext
	}
	rec.SmartPointerInfo, rec.MemoryLayout, rec.GenericInfo, rec.RuntimeState = exts[0], exts[1], exts[2], exts[3]

	if r.pos != len(r.data) {
		return nil, errors.Newf(errors.CodeSerializationError,
			"record value has %d trailing bytes", len(r.data)-r.pos)
	}
	return rec, nil
}
