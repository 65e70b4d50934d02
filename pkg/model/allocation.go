// Package model defines the core data structures used throughout the application.
package model

import "encoding/json"

// AllocationRecord is a single allocation event decoded from a binary log.
//
// Pointer-typed fields are optional: a nil value means the profiler never
// recorded that attribute for this allocation. JSON views emit explicit
// nulls for absent optional fields so every record carries a stable key set.
type AllocationRecord struct {
	// Ptr is the allocated address.
	Ptr uint64 `json:"ptr"`

	// Size is the allocation size in bytes.
	Size uint64 `json:"size"`

	// VarName is the source variable name, if tracked.
	VarName *string `json:"var_name"`

	// TypeName is the allocated type, if tracked.
	TypeName *string `json:"type_name"`

	// ScopeName is the lexical scope the allocation was made in, if tracked.
	ScopeName *string `json:"scope_name"`

	// ThreadID identifies the allocating thread. Always present.
	ThreadID string `json:"thread_id"`

	// TimestampAlloc is the allocation time in nanoseconds since epoch.
	TimestampAlloc uint64 `json:"timestamp_alloc"`

	// TimestampDealloc is the deallocation time, if one was recorded.
	TimestampDealloc *uint64 `json:"timestamp_dealloc"`

	// StackTrace holds captured frames, innermost first.
	StackTrace []string `json:"stack_trace"`

	// BorrowCount is the number of borrows observed for this allocation.
	BorrowCount uint32 `json:"borrow_count"`

	// IsLeaked marks allocations still live when tracking stopped.
	IsLeaked bool `json:"is_leaked"`

	// LifetimeMs is the allocation lifetime in milliseconds, when known.
	LifetimeMs *uint64 `json:"lifetime_ms"`

	// SmartPointerInfo carries smart-pointer metadata as an opaque
	// JSON payload produced by the profiler.
	SmartPointerInfo json.RawMessage `json:"smart_pointer_info,omitempty"`

	// MemoryLayout carries type layout metadata as an opaque JSON payload.
	MemoryLayout json.RawMessage `json:"memory_layout,omitempty"`

	// GenericInfo carries generic instantiation metadata as an opaque
	// JSON payload.
	GenericInfo json.RawMessage `json:"generic_info,omitempty"`

	// RuntimeState carries runtime tracking state as an opaque JSON payload.
	RuntimeState json.RawMessage `json:"runtime_state,omitempty"`
}

// HasDealloc reports whether a deallocation was recorded.
func (r *AllocationRecord) HasDealloc() bool {
	return r.TimestampDealloc != nil
}

// HasStackTrace reports whether a non-empty stack trace was captured.
func (r *AllocationRecord) HasStackTrace() bool {
	return len(r.StackTrace) > 0
}

// TypeNameOrEmpty returns the type name, or "" if absent.
func (r *AllocationRecord) TypeNameOrEmpty() string {
	if r.TypeName == nil {
		return ""
	}
	return *r.TypeName
}
