package model

import (
	"time"
)

// RunStatus represents the status of an export run.
type RunStatus int

const (
	RunStatusRunning   RunStatus = 0 // Export in progress
	RunStatusCompleted RunStatus = 1 // Export completed
	RunStatusFailed    RunStatus = 2 // Export failed
)

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	switch s {
	case RunStatusRunning:
		return "running"
	case RunStatusCompleted:
		return "completed"
	case RunStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExportRun records one adaptive export invocation for audit and retry.
type ExportRun struct {
	ID          int64     `json:"id"`
	RunUUID     string    `json:"run_uuid"`
	SourcePath  string    `json:"source_path"`
	ContentHash string    `json:"content_hash"`
	FileSize    int64     `json:"file_size"`
	Strategy    string    `json:"strategy"`
	Status      RunStatus `json:"status"`
	StatusInfo  string    `json:"status_info"`

	// TotalRecords is the record count declared by the log header.
	TotalRecords int64 `json:"total_records"`

	// TypeCounts maps output type suffix to the number of records written.
	TypeCounts map[string]int64 `json:"type_counts"`

	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

