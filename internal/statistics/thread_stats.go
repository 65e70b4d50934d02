package statistics

import (
	"sort"

	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/profiling"
)

// ThreadStatsCalculator aggregates allocation records by thread.
type ThreadStatsCalculator struct {
	maxThreads  int
	groupByName bool
}

// ThreadStatsOption configures the ThreadStatsCalculator.
type ThreadStatsOption func(*ThreadStatsCalculator)

// WithMaxThreads sets the maximum number of threads to return.
func WithMaxThreads(n int) ThreadStatsOption {
	return func(c *ThreadStatsCalculator) {
		c.maxThreads = n
	}
}

// WithThreadGrouping folds numbered worker threads into one entry, so
// "worker-1" and "worker-2" aggregate under "worker".
func WithThreadGrouping(enabled bool) ThreadStatsOption {
	return func(c *ThreadStatsCalculator) {
		c.groupByName = enabled
	}
}

// NewThreadStatsCalculator creates a new ThreadStatsCalculator.
func NewThreadStatsCalculator(opts ...ThreadStatsOption) *ThreadStatsCalculator {
	c := &ThreadStatsCalculator{
		maxThreads: 0, // 0 means no limit
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ThreadEntry represents one thread with its allocation statistics.
type ThreadEntry struct {
	ThreadID    string  `json:"thread_id"`
	Allocations int64   `json:"allocations"`
	TotalBytes  int64   `json:"total_bytes"`
	LeakedBytes int64   `json:"leaked_bytes"`
	Percentage  float64 `json:"percentage"`
}

// ThreadStatsResult holds the calculation result.
type ThreadStatsResult struct {
	Threads    []ThreadEntry
	TotalBytes int64
	TotalCount int64
}

// Calculate aggregates the given records by thread. Percentages are by
// allocated bytes, and entries are sorted by bytes descending.
func (c *ThreadStatsCalculator) Calculate(records []*model.AllocationRecord) *ThreadStatsResult {
	result := &ThreadStatsResult{
		Threads: make([]ThreadEntry, 0),
	}

	if len(records) == 0 {
		return result
	}

	threadStats := make(map[string]*ThreadEntry)

	for _, rec := range records {
		key := rec.ThreadID
		if c.groupByName {
			key = profiling.ExtractThreadGroup(key)
		}

		result.TotalBytes += int64(rec.Size)
		result.TotalCount++

		entry, ok := threadStats[key]
		if !ok {
			entry = &ThreadEntry{ThreadID: key}
			threadStats[key] = entry
		}
		entry.Allocations++
		entry.TotalBytes += int64(rec.Size)
		if rec.IsLeaked {
			entry.LeakedBytes += int64(rec.Size)
		}
	}

	entries := make([]ThreadEntry, 0, len(threadStats))
	for _, ts := range threadStats {
		pct := 0.0
		if result.TotalBytes > 0 {
			pct = float64(ts.TotalBytes) / float64(result.TotalBytes) * 100
		}
		ts.Percentage = pct
		entries = append(entries, *ts)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalBytes != entries[j].TotalBytes {
			return entries[i].TotalBytes > entries[j].TotalBytes
		}
		return entries[i].ThreadID < entries[j].ThreadID
	})

	if c.maxThreads > 0 && len(entries) > c.maxThreads {
		entries = entries[:c.maxThreads]
	}

	result.Threads = entries
	return result
}

// GetThreadByID returns the entry for one thread, or nil if it did not
// make the cut.
func (r *ThreadStatsResult) GetThreadByID(id string) *ThreadEntry {
	for i := range r.Threads {
		if r.Threads[i].ThreadID == id {
			return &r.Threads[i]
		}
	}
	return nil
}
