package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/alloctrace/pkg/model"
)

// JSONField stores a JSON document in a text/json column.
type JSONField map[string]int64

// Value implements driver.Valuer.
func (f JSONField) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (f *JSONField) Scan(value interface{}) error {
	if value == nil {
		*f = JSONField{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// ExportRunRow is the export_run table.
type ExportRunRow struct {
	ID           int64           `gorm:"column:id;primaryKey;autoIncrement"`
	RunUUID      string          `gorm:"column:run_uuid;type:varchar(64);uniqueIndex"`
	SourcePath   string          `gorm:"column:source_path;type:varchar(512)"`
	ContentHash  string          `gorm:"column:content_hash;type:varchar(32);index"`
	FileSize     int64           `gorm:"column:file_size"`
	Strategy     string          `gorm:"column:strategy;type:varchar(32)"`
	Status       model.RunStatus `gorm:"column:status"`
	StatusInfo   string          `gorm:"column:status_info;type:text"`
	TotalRecords int64           `gorm:"column:total_records"`
	TypeCounts   JSONField       `gorm:"column:type_counts;type:text"`
	DurationMs   int64           `gorm:"column:duration_ms"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the table name for ExportRunRow.
func (ExportRunRow) TableName() string {
	return "export_run"
}

// ToModel converts the row to a model.ExportRun.
func (r *ExportRunRow) ToModel() *model.ExportRun {
	return &model.ExportRun{
		ID:           r.ID,
		RunUUID:      r.RunUUID,
		SourcePath:   r.SourcePath,
		ContentHash:  r.ContentHash,
		FileSize:     r.FileSize,
		Strategy:     r.Strategy,
		Status:       r.Status,
		StatusInfo:   r.StatusInfo,
		TotalRecords: r.TotalRecords,
		TypeCounts:   map[string]int64(r.TypeCounts),
		DurationMs:   r.DurationMs,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func rowFromModel(run *model.ExportRun) *ExportRunRow {
	return &ExportRunRow{
		ID:           run.ID,
		RunUUID:      run.RunUUID,
		SourcePath:   run.SourcePath,
		ContentHash:  run.ContentHash,
		FileSize:     run.FileSize,
		Strategy:     run.Strategy,
		Status:       run.Status,
		StatusInfo:   run.StatusInfo,
		TotalRecords: run.TotalRecords,
		TypeCounts:   JSONField(run.TypeCounts),
		DurationMs:   run.DurationMs,
	}
}
