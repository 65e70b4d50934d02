package binlog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"

	"github.com/alloctrace/pkg/compression"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

// Writer appends TLV-encoded allocation records to a binary log. The header
// record count is backpatched on Close, so the caller does not need to know
// the total up front.
type Writer struct {
	file   *os.File
	buf    *bufio.Writer
	table  *StringTable
	region *StringTableRegion
	count  uint32
	closed bool
}

// NewWriter creates a log at path and writes the header and string table
// segment. A nil table writes the "NONE" marker; records then carry all
// strings inline.
func NewWriter(path string, table *StringTable) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to create log file "+path, err)
	}

	buf := bufio.NewWriter(file)
	if err := EncodeHeader(buf, &Header{Version: FormatVersion}); err != nil {
		file.Close()
		return nil, err
	}

	comp := compression.Default()
	defer compression.Close(comp)
	region, err := table.encode(buf, comp)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &Writer{
		file:   file,
		buf:    buf,
		table:  table,
		region: region,
	}, nil
}

// StringTableRegion describes the table segment this writer emitted.
func (w *Writer) StringTableRegion() *StringTableRegion {
	return w.region
}

// Count returns the number of records written so far.
func (w *Writer) Count() uint32 {
	return w.count
}

// WriteRecord encodes and appends one allocation record.
func (w *Writer) WriteRecord(rec *model.AllocationRecord) error {
	if w.closed {
		return errors.New(errors.CodeIOError, "writer is closed")
	}
	value, err := EncodeRecordValue(rec, w.table)
	if err != nil {
		return err
	}
	if err := w.buf.WriteByte(RecordTypeAllocation); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write record type", err)
	}
	if err := writeU32(w.buf, uint32(len(value))); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write record length", err)
	}
	if _, err := w.buf.Write(value); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write record value", err)
	}
	w.count++
	return nil
}

// Close flushes buffered records, backpatches the header record count and
// closes the file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(errors.CodeIOError, "failed to flush log", err)
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], w.count)
	if _, err := w.file.WriteAt(countBuf[:], recordCountOffset); err != nil {
		w.file.Close()
		return errors.Wrap(errors.CodeIOError, "failed to backpatch record count", err)
	}

	if err := w.file.Close(); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to close log", err)
	}
	return nil
}

// EncodeRecordValue encodes a record's value bytes (TLV payload, without the
// type byte and length prefix). Strings found in the table are written as
// references; everything else is inline.
func EncodeRecordValue(rec *model.AllocationRecord, table *StringTable) ([]byte, error) {
	var buf bytes.Buffer

	writeU64(&buf, rec.Ptr)
	writeU64(&buf, rec.Size)
	writeU64(&buf, rec.TimestampAlloc)

	if rec.TimestampDealloc != nil {
		buf.WriteByte(1)
		writeU64(&buf, *rec.TimestampDealloc)
	} else {
		buf.WriteByte(0)
	}

	if err := encodeOptionalString(&buf, rec.VarName, table); err != nil {
		return nil, err
	}
	if err := encodeOptionalString(&buf, rec.TypeName, table); err != nil {
		return nil, err
	}
	if err := encodeOptionalString(&buf, rec.ScopeName, table); err != nil {
		return nil, err
	}
	if err := encodeString(&buf, rec.ThreadID, table); err != nil {
		return nil, err
	}

	if len(rec.StackTrace) > 0 {
		buf.WriteByte(1)
		writeU32(&buf, uint32(len(rec.StackTrace)))
		for _, frame := range rec.StackTrace {
			if err := encodeString(&buf, frame, table); err != nil {
				return nil, err
			}
		}
	} else {
		buf.WriteByte(0)
	}

	writeU32(&buf, rec.BorrowCount)
	if rec.IsLeaked {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if rec.LifetimeMs != nil {
		buf.WriteByte(1)
		writeU64(&buf, *rec.LifetimeMs)
	} else {
		buf.WriteByte(0)
	}

	for _, ext := range []json.RawMessage{
		rec.SmartPointerInfo, rec.MemoryLayout, rec.GenericInfo, rec.RuntimeState,
	} {
		if err := encodeExtension(&buf, ext); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// encodeString writes a required string: a table reference when the table
// admitted it, an inline length-prefixed sequence otherwise.
func encodeString(buf *bytes.Buffer, s string, table *StringTable) error {
	if table != nil {
		if idx, ok := table.Lookup(s); ok {
			writeU32(buf, tableRefMarker)
			writeU16(buf, idx)
			return nil
		}
	}
	if len(s) > maxInlineStringLen {
		return errors.Newf(errors.CodeSerializationError,
			"string of %d bytes exceeds the encodable length", len(s))
	}
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
	return nil
}

// encodeOptionalString writes the none marker for nil values.
func encodeOptionalString(buf *bytes.Buffer, s *string, table *StringTable) error {
	if s == nil {
		writeU32(buf, noneMarker)
		return nil
	}
	return encodeString(buf, *s, table)
}

// encodeExtension writes an optional opaque JSON payload.
func encodeExtension(buf *bytes.Buffer, ext json.RawMessage) error {
	if len(ext) == 0 {
		buf.WriteByte(0)
		return nil
	}
	if !json.Valid(ext) {
		return errors.New(errors.CodeSerializationError, "extension payload is not valid JSON")
	}
	buf.WriteByte(1)
	writeU32(buf, uint32(len(ext)))
	buf.Write(ext)
	return nil
}
