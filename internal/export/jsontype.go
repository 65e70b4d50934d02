// Package export implements the adaptive selective-export pipeline: the
// JsonType field-projection catalog, record predicates, size-based strategy
// selection and the three export strategies.
package export

import (
	"encoding/json"
	"strings"

	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

// JsonType is one of the closed set of specialized output views.
type JsonType int

const (
	MemoryAnalysis JsonType = iota
	LifetimeAnalysis
	PerformanceAnalysis
	ComplexTypes
	UnsafeFFI
)

// AllJsonTypes returns every output view, in catalog order.
func AllJsonTypes() []JsonType {
	return []JsonType{MemoryAnalysis, LifetimeAnalysis, PerformanceAnalysis, ComplexTypes, UnsafeFFI}
}

// String returns the view's canonical name.
func (t JsonType) String() string {
	switch t {
	case MemoryAnalysis:
		return "memory_analysis"
	case LifetimeAnalysis:
		return "lifetime_analysis"
	case PerformanceAnalysis:
		return "performance_analysis"
	case ComplexTypes:
		return "complex_types"
	case UnsafeFFI:
		return "unsafe_ffi"
	default:
		return "unknown"
	}
}

// Suffix returns the output file name suffix: for base name B the view is
// written to B_<suffix>.json.
func (t JsonType) Suffix() string {
	switch t {
	case MemoryAnalysis:
		return "memory_analysis"
	case LifetimeAnalysis:
		return "lifetime"
	case PerformanceAnalysis:
		return "performance"
	case ComplexTypes:
		return "complex_types"
	case UnsafeFFI:
		return "unsafe_ffi"
	default:
		return "unknown"
	}
}

// ParseJsonType resolves a user-supplied view name.
func ParseJsonType(s string) (JsonType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "memory_analysis":
		return MemoryAnalysis, nil
	case "lifetime", "lifetime_analysis":
		return LifetimeAnalysis, nil
	case "performance", "performance_analysis":
		return PerformanceAnalysis, nil
	case "complex_types", "complextypes":
		return ComplexTypes, nil
	case "unsafe_ffi", "ffi", "unsafeffi":
		return UnsafeFFI, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidInput, "unknown json type %q", s)
	}
}

// RequiredFields returns the minimal field set the view projects, in output
// key order.
func (t JsonType) RequiredFields() []string {
	switch t {
	case MemoryAnalysis:
		return []string{"ptr", "size", "var_name", "type_name", "thread_id", "timestamp_alloc", "is_leaked", "borrow_count"}
	case LifetimeAnalysis:
		return []string{"ptr", "var_name", "timestamp_alloc", "timestamp_dealloc", "lifetime_ms", "scope_name"}
	case PerformanceAnalysis:
		return []string{"ptr", "size", "timestamp_alloc", "thread_id", "borrow_count"}
	case ComplexTypes:
		return []string{"ptr", "size", "var_name", "type_name", "smart_pointer_info", "memory_layout", "generic_info"}
	case UnsafeFFI:
		return []string{"ptr", "var_name", "type_name", "thread_id", "stack_trace", "runtime_state"}
	default:
		return nil
	}
}

// Filters returns the view's record-level predicates.
func (t JsonType) Filters() []RecordFilter {
	switch t {
	case MemoryAnalysis:
		return nil
	case LifetimeAnalysis:
		return []RecordFilter{HasDealloc{}}
	case PerformanceAnalysis:
		return []RecordFilter{SizeAtLeast{Min: 1024}}
	case ComplexTypes:
		return []RecordFilter{SizeAtLeast{Min: 64}, TypeNameUsable{}}
	case UnsafeFFI:
		return []RecordFilter{HasStackTrace{}}
	default:
		return nil
	}
}

// Matches applies all of the view's predicates to one record.
func (t JsonType) Matches(rec *model.AllocationRecord) bool {
	for _, f := range t.Filters() {
		if !f.Matches(rec) {
			return false
		}
	}
	return true
}

// Per-view output rows. Pointer and RawMessage fields marshal absent values
// as explicit nulls so every row in one export carries the same key set.

type memoryAnalysisRow struct {
	Ptr            uint64  `json:"ptr"`
	Size           uint64  `json:"size"`
	VarName        *string `json:"var_name"`
	TypeName       *string `json:"type_name"`
	ThreadID       string  `json:"thread_id"`
	TimestampAlloc uint64  `json:"timestamp_alloc"`
	IsLeaked       bool    `json:"is_leaked"`
	BorrowCount    uint32  `json:"borrow_count"`
}

type lifetimeAnalysisRow struct {
	Ptr              uint64  `json:"ptr"`
	VarName          *string `json:"var_name"`
	TimestampAlloc   uint64  `json:"timestamp_alloc"`
	TimestampDealloc *uint64 `json:"timestamp_dealloc"`
	LifetimeMs       *uint64 `json:"lifetime_ms"`
	ScopeName        *string `json:"scope_name"`
}

type performanceAnalysisRow struct {
	Ptr            uint64 `json:"ptr"`
	Size           uint64 `json:"size"`
	TimestampAlloc uint64 `json:"timestamp_alloc"`
	ThreadID       string `json:"thread_id"`
	BorrowCount    uint32 `json:"borrow_count"`
}

type complexTypesRow struct {
	Ptr              uint64          `json:"ptr"`
	Size             uint64          `json:"size"`
	VarName          *string         `json:"var_name"`
	TypeName         *string         `json:"type_name"`
	SmartPointerInfo json.RawMessage `json:"smart_pointer_info"`
	MemoryLayout     json.RawMessage `json:"memory_layout"`
	GenericInfo      json.RawMessage `json:"generic_info"`
}

type unsafeFFIRow struct {
	Ptr          uint64          `json:"ptr"`
	VarName      *string         `json:"var_name"`
	TypeName     *string         `json:"type_name"`
	ThreadID     string          `json:"thread_id"`
	StackTrace   []string        `json:"stack_trace"`
	RuntimeState json.RawMessage `json:"runtime_state"`
}

// Project builds the view's output row for one record, restricted to the
// required fields.
func (t JsonType) Project(rec *model.AllocationRecord) any {
	switch t {
	case MemoryAnalysis:
		return memoryAnalysisRow{
			Ptr:            rec.Ptr,
			Size:           rec.Size,
			VarName:        rec.VarName,
			TypeName:       rec.TypeName,
			ThreadID:       rec.ThreadID,
			TimestampAlloc: rec.TimestampAlloc,
			IsLeaked:       rec.IsLeaked,
			BorrowCount:    rec.BorrowCount,
		}
	case LifetimeAnalysis:
		return lifetimeAnalysisRow{
			Ptr:              rec.Ptr,
			VarName:          rec.VarName,
			TimestampAlloc:   rec.TimestampAlloc,
			TimestampDealloc: rec.TimestampDealloc,
			LifetimeMs:       rec.LifetimeMs,
			ScopeName:        rec.ScopeName,
		}
	case PerformanceAnalysis:
		return performanceAnalysisRow{
			Ptr:            rec.Ptr,
			Size:           rec.Size,
			TimestampAlloc: rec.TimestampAlloc,
			ThreadID:       rec.ThreadID,
			BorrowCount:    rec.BorrowCount,
		}
	case ComplexTypes:
		return complexTypesRow{
			Ptr:              rec.Ptr,
			Size:             rec.Size,
			VarName:          rec.VarName,
			TypeName:         rec.TypeName,
			SmartPointerInfo: rec.SmartPointerInfo,
			MemoryLayout:     rec.MemoryLayout,
			GenericInfo:      rec.GenericInfo,
		}
	case UnsafeFFI:
		return unsafeFFIRow{
			Ptr:          rec.Ptr,
			VarName:      rec.VarName,
			TypeName:     rec.TypeName,
			ThreadID:     rec.ThreadID,
			StackTrace:   rec.StackTrace,
			RuntimeState: rec.RuntimeState,
		}
	default:
		return nil
	}
}
