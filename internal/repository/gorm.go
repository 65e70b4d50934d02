package repository

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a repository over an open connection.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Migrate creates or updates the export_run table.
func (r *GormRunRepository) Migrate() error {
	if err := r.db.AutoMigrate(&ExportRunRow{}); err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to migrate export_run", err)
	}
	return nil
}

func (r *GormRunRepository) CreateRun(ctx context.Context, run *model.ExportRun) error {
	row := rowFromModel(run)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to create export run", err)
	}
	run.ID = row.ID
	run.CreatedAt = row.CreatedAt
	run.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *GormRunRepository) GetRunByUUID(ctx context.Context, runUUID string) (*model.ExportRun, error) {
	var row ExportRunRow
	err := r.db.WithContext(ctx).Where("run_uuid = ?", runUUID).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf(errors.CodeNotFound, "export run %s not found", runUUID)
		}
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to load export run", err)
	}
	return row.ToModel(), nil
}

func (r *GormRunRepository) CompleteRun(ctx context.Context, runUUID string, run *model.ExportRun) error {
	updates := map[string]interface{}{
		"status":        model.RunStatusCompleted,
		"status_info":   "",
		"strategy":      run.Strategy,
		"total_records": run.TotalRecords,
		"type_counts":   JSONField(run.TypeCounts),
		"duration_ms":   run.DurationMs,
	}
	return r.updateRun(ctx, runUUID, updates)
}

func (r *GormRunRepository) FailRun(ctx context.Context, runUUID string, reason string) error {
	return r.updateRun(ctx, runUUID, map[string]interface{}{
		"status":      model.RunStatusFailed,
		"status_info": reason,
	})
}

func (r *GormRunRepository) updateRun(ctx context.Context, runUUID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&ExportRunRow{}).
		Where("run_uuid = ?", runUUID).
		Updates(updates)
	if result.Error != nil {
		return errors.Wrap(errors.CodeDatabaseError, "failed to update export run", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.CodeNotFound, "export run %s not found", runUUID)
	}
	return nil
}

func (r *GormRunRepository) ListRecentRuns(ctx context.Context, limit int) ([]*model.ExportRun, error) {
	var rows []ExportRunRow
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to list export runs", err)
	}

	runs := make([]*model.ExportRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].ToModel()
	}
	return runs, nil
}

func (r *GormRunRepository) FindCompletedRunForSource(ctx context.Context, contentHash string) (*model.ExportRun, error) {
	var row ExportRunRow
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND status = ?", contentHash, model.RunStatusCompleted).
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.CodeDatabaseError, "failed to query runs by source", err)
	}
	return row.ToModel(), nil
}
