// Package binlog implements the binary allocation log codec: the file
// header, the string table segment and the TLV-encoded allocation records.
package binlog

import (
	"encoding/binary"
	"io"

	"github.com/alloctrace/pkg/errors"
)

// File layout:
//
//	header           magic "ALLOCLOG" | version u32 | record count u32
//	string table     marker "STBL"/"NONE" | byte size u32 | compression u8 |
//	                 string count u32 | (u16 length + bytes) per string
//	records          per record: type u8 | value length u32 | value bytes
//	metrics (opt)    marker "AMET" | bitmap u32 | metric count u32 |
//	                 (name, offset u64, size u64, entries u32) per metric
//
// All integers are little-endian.
const (
	// Magic identifies a binary allocation log.
	Magic = "ALLOCLOG"

	// FormatVersion is the current log format version.
	FormatVersion uint32 = 1

	// HeaderSize is the fixed byte size of the file header.
	HeaderSize = 16

	// RecordTypeAllocation is the TLV type byte of an allocation record.
	RecordTypeAllocation byte = 0xA1

	// recordEnvelopeSize is the TLV overhead per record (type + length).
	recordEnvelopeSize = 5

	stringTableMarker = "STBL"
	noTableMarker     = "NONE"
	metricsMarker     = "AMET"

	// tableRefMarker escapes a string-table reference in a record field.
	tableRefMarker uint32 = 0xFFFF

	// noneMarker encodes an absent optional string, distinct from an
	// empty string (length 0).
	noneMarker uint32 = 0xFFFFFFFE

	// maxInlineStringLen keeps inline lengths below the table-ref escape.
	maxInlineStringLen = 0xFFFE

	// recordCountOffset is the header position of the record count,
	// backpatched by the writer on Close.
	recordCountOffset = 12
)

// Header is the decoded file header.
type Header struct {
	Version     uint32
	RecordCount uint32
}

// EncodeHeader writes the file header.
func EncodeHeader(w io.Writer, h *Header) error {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[8:], h.Version)
	binary.LittleEndian.PutUint32(buf[12:], h.RecordCount)
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write header", err)
	}
	return nil
}

// DecodeHeader reads and validates the file header.
func DecodeHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(errors.CodeCorruptedData, "file too short for header", err)
	}
	if string(buf[:8]) != Magic {
		return nil, errors.New(errors.CodeCorruptedData, "bad magic bytes, not an allocation log")
	}
	h := &Header{
		Version:     binary.LittleEndian.Uint32(buf[8:]),
		RecordCount: binary.LittleEndian.Uint32(buf[12:]),
	}
	if h.Version == 0 || h.Version > FormatVersion {
		return nil, errors.Newf(errors.CodeCorruptedData, "unsupported format version %d", h.Version)
	}
	return h, nil
}

// StringTableRegion describes where the string table segment lives in the
// file. The index stores a copy so readers can locate the table without
// rescanning the header area.
type StringTableRegion struct {
	Offset      uint64 `json:"offset"`
	ByteLength  uint64 `json:"byte_length"`
	StringCount uint32 `json:"string_count"`
	Compression uint8  `json:"compression"`
}

// Present reports whether the log carries a string table.
func (r *StringTableRegion) Present() bool {
	return r.StringCount > 0
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}
