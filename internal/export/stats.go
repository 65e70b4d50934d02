package export

import "time"

// TypeExportStats reports one view's export outcome.
type TypeExportStats struct {
	JsonType       string        `json:"json_type"`
	OutputPath     string        `json:"output_path"`
	RecordsWritten int64         `json:"records_written"`
	BytesWritten   int64         `json:"bytes_written"`
	RecordsSkipped int64         `json:"records_skipped"`
	BatchesSkipped int           `json:"batches_skipped"`
	Duration       time.Duration `json:"duration_ns"`
}

// MultiExportStats aggregates a whole adaptive export run.
type MultiExportStats struct {
	SourcePath       string            `json:"source_path"`
	FileSize         int64             `json:"file_size"`
	Strategy         Strategy          `json:"-"`
	StrategyName     string            `json:"strategy"`
	RecordsProcessed int64             `json:"records_processed"`
	IndexFromCache   bool              `json:"index_from_cache"`
	PerType          []TypeExportStats `json:"per_type"`
	TotalDuration    time.Duration     `json:"total_duration_ns"`
}

// TotalRecordsWritten sums records written across all views.
func (s *MultiExportStats) TotalRecordsWritten() int64 {
	var total int64
	for _, t := range s.PerType {
		total += t.RecordsWritten
	}
	return total
}

// TypeCounts returns records written keyed by view name.
func (s *MultiExportStats) TypeCounts() map[string]int64 {
	counts := make(map[string]int64, len(s.PerType))
	for _, t := range s.PerType {
		counts[t.JsonType] = t.RecordsWritten
	}
	return counts
}

// Throughput returns processed records per second, or 0 for an instant run.
func (s *MultiExportStats) Throughput() float64 {
	if s.TotalDuration <= 0 {
		return 0
	}
	return float64(s.RecordsProcessed) / s.TotalDuration.Seconds()
}
