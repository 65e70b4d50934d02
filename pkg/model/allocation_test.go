package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func u64Ptr(v uint64) *uint64 { return &v }

func TestAllocationRecord_HasDealloc(t *testing.T) {
	rec := AllocationRecord{Ptr: 0x1000, Size: 64, ThreadID: "main"}
	assert.False(t, rec.HasDealloc())

	rec.TimestampDealloc = u64Ptr(12345)
	assert.True(t, rec.HasDealloc())
}

func TestAllocationRecord_HasStackTrace(t *testing.T) {
	rec := AllocationRecord{ThreadID: "main"}
	assert.False(t, rec.HasStackTrace())

	rec.StackTrace = []string{}
	assert.False(t, rec.HasStackTrace())

	rec.StackTrace = []string{"alloc::boxed::Box::new"}
	assert.True(t, rec.HasStackTrace())
}

func TestAllocationRecord_TypeNameOrEmpty(t *testing.T) {
	rec := AllocationRecord{ThreadID: "main"}
	assert.Equal(t, "", rec.TypeNameOrEmpty())

	rec.TypeName = strPtr("Vec<u8>")
	assert.Equal(t, "Vec<u8>", rec.TypeNameOrEmpty())
}

func TestRunStatus_String(t *testing.T) {
	assert.Equal(t, "running", RunStatusRunning.String())
	assert.Equal(t, "completed", RunStatusCompleted.String())
	assert.Equal(t, "failed", RunStatusFailed.String())
	assert.Equal(t, "unknown", RunStatus(42).String())
}
