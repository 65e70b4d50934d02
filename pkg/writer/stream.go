package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// StreamArrayWriter writes a JSON array incrementally so the full document
// never has to be held in memory. Elements are buffered and flushed once the
// buffered size crosses the flush watermark.
type StreamArrayWriter struct {
	file      *os.File
	buf       *bufio.Writer
	watermark int
	pending   int
	count     int64
	closed    bool
}

// NewStreamArrayWriter creates a writer for the given path and emits the
// opening bracket. bufferSize sets the underlying buffer capacity and
// flushWatermark the pending-byte threshold that triggers a flush.
func NewStreamArrayWriter(path string, bufferSize, flushWatermark int) (*StreamArrayWriter, error) {
	if bufferSize <= 0 {
		bufferSize = 64 * 1024
	}
	if flushWatermark <= 0 {
		flushWatermark = bufferSize
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	w := &StreamArrayWriter{
		file:      file,
		buf:       bufio.NewWriterSize(file, bufferSize),
		watermark: flushWatermark,
	}
	if _, err := w.buf.WriteString("["); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write array start: %w", err)
	}
	return w, nil
}

// WriteElement appends one element to the array.
func (w *StreamArrayWriter) WriteElement(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode element: %w", err)
	}
	return w.WriteRaw(data)
}

// WriteRaw appends pre-encoded JSON as one array element.
func (w *StreamArrayWriter) WriteRaw(data []byte) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if w.count > 0 {
		if _, err := w.buf.WriteString(","); err != nil {
			return err
		}
	}
	n, err := w.buf.Write(data)
	if err != nil {
		return err
	}
	w.count++
	w.pending += n + 1
	if w.pending >= w.watermark {
		if err := w.buf.Flush(); err != nil {
			return err
		}
		w.pending = 0
	}
	return nil
}

// Count returns the number of elements written so far.
func (w *StreamArrayWriter) Count() int64 {
	return w.count
}

// Close emits the closing bracket, flushes and closes the file.
// A writer closed without any elements produces a valid empty array.
func (w *StreamArrayWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.buf.WriteString("]"); err != nil {
		w.file.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Abort closes the underlying file without completing the array.
// The caller is responsible for removing or marking the partial output.
func (w *StreamArrayWriter) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

var _ io.Closer = (*StreamArrayWriter)(nil)
