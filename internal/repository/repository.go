// Package repository persists export run history for audit and retry.
package repository

import (
	"context"

	"github.com/alloctrace/pkg/model"
)

// RunRepository stores one row per adaptive export invocation.
type RunRepository interface {
	// CreateRun inserts a new run in running state and fills in its ID.
	CreateRun(ctx context.Context, run *model.ExportRun) error

	// GetRunByUUID retrieves a run by its UUID.
	GetRunByUUID(ctx context.Context, runUUID string) (*model.ExportRun, error)

	// CompleteRun marks a run completed and records its outcome.
	CompleteRun(ctx context.Context, runUUID string, run *model.ExportRun) error

	// FailRun marks a run failed with a reason.
	FailRun(ctx context.Context, runUUID string, reason string) error

	// ListRecentRuns returns the most recent runs, newest first.
	ListRecentRuns(ctx context.Context, limit int) ([]*model.ExportRun, error)

	// FindCompletedRunForSource returns the most recent completed run for
	// a source content hash, or nil when none exists. Used to detect
	// exports that can be skipped because the input is unchanged.
	FindCompletedRunForSource(ctx context.Context, contentHash string) (*model.ExportRun, error)
}
