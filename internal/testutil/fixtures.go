// Package testutil provides shared fixtures for binary log tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/model"
)

// RecordSpec tunes GenerateRecords.
type RecordSpec struct {
	// Count is the number of records to generate.
	Count int
	// Types cycles through these type names; empty leaves types unset.
	Types []string
	// Threads cycles through these thread IDs; empty uses "main".
	Threads []string
	// DeallocEvery marks every n-th record deallocated (0 = none).
	DeallocEvery int
	// StackEvery gives every n-th record a stack trace (0 = none).
	StackEvery int
	// MaxSize bounds the cycling allocation sizes (default 4096).
	MaxSize uint64
}

// GenerateRecords builds deterministic allocation records for tests.
func GenerateRecords(spec RecordSpec) []*model.AllocationRecord {
	maxSize := spec.MaxSize
	if maxSize == 0 {
		maxSize = 4096
	}

	records := make([]*model.AllocationRecord, spec.Count)
	for i := 0; i < spec.Count; i++ {
		rec := &model.AllocationRecord{
			Ptr:            uint64(0x10000 + i*16),
			Size:           uint64(16 + (uint64(i*37) % maxSize)),
			ThreadID:       "main",
			TimestampAlloc: uint64(1_000_000 + i),
			BorrowCount:    uint32(i % 5),
		}
		if len(spec.Threads) > 0 {
			rec.ThreadID = spec.Threads[i%len(spec.Threads)]
		}
		if len(spec.Types) > 0 {
			typeName := spec.Types[i%len(spec.Types)]
			rec.TypeName = &typeName
			varName := fmt.Sprintf("var_%d", i)
			rec.VarName = &varName
		}
		if spec.DeallocEvery > 0 && i%spec.DeallocEvery == 0 {
			dealloc := rec.TimestampAlloc + 500
			lifetime := uint64(1)
			rec.TimestampDealloc = &dealloc
			rec.LifetimeMs = &lifetime
		}
		if spec.StackEvery > 0 && i%spec.StackEvery == 0 {
			rec.StackTrace = []string{"alloc::alloc", fmt.Sprintf("frame_%d", i%3), "main"}
		}
		records[i] = rec
	}
	return records
}

// WriteLogFile writes records to a binary log under dir and returns its path.
func WriteLogFile(t *testing.T, dir string, records []*model.AllocationRecord) string {
	t.Helper()
	return WriteLogFileWithTable(t, dir, records, nil)
}

// WriteLogFileWithTable writes a log with a prebuilt string table.
func WriteLogFileWithTable(t *testing.T, dir string, records []*model.AllocationRecord, table *binlog.StringTable) string {
	t.Helper()

	path := filepath.Join(dir, "alloc.bin")
	w, err := binlog.NewWriter(path, table)
	if err != nil {
		t.Fatalf("failed to create log writer: %v", err)
	}
	for i, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			t.Fatalf("failed to write record %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close log writer: %v", err)
	}
	return path
}

// BuildStringTable builds a table admitting the frequent strings of the
// given records, the way production writers do before a large export.
func BuildStringTable(records []*model.AllocationRecord) (*binlog.StringTable, error) {
	builder := binlog.NewStringTableBuilder(binlog.MinFrequencyForRecords(len(records)))
	for _, rec := range records {
		builder.RecordOptional(rec.VarName)
		builder.RecordOptional(rec.TypeName)
		builder.RecordOptional(rec.ScopeName)
		builder.Record(rec.ThreadID)
		for _, frame := range rec.StackTrace {
			builder.Record(frame)
		}
	}
	table, _, err := builder.Build()
	return table, err
}
