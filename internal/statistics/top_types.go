// Package statistics provides aggregate views over decoded allocation
// records: per-thread totals and top allocated types.
package statistics

import (
	"sort"

	"github.com/alloctrace/pkg/filter"
	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/profiling"
)

// TopTypesCalculator ranks allocated types by total bytes.
type TopTypesCalculator struct {
	topN           int
	includeUntyped bool
	typeFilter     *filter.TypeFilter
}

// TopTypesOption configures the TopTypesCalculator.
type TopTypesOption func(*TopTypesCalculator)

// WithTopN sets the number of top types to return.
func WithTopN(n int) TopTypesOption {
	return func(c *TopTypesCalculator) {
		c.topN = n
	}
}

// WithUntyped includes allocations without a usable type name in the
// ranking, under the "unknown" placeholder.
func WithUntyped(include bool) TopTypesOption {
	return func(c *TopTypesCalculator) {
		c.includeUntyped = include
	}
}

// WithTypeFilter sets the classifier used to categorize type names.
func WithTypeFilter(f *filter.TypeFilter) TopTypesOption {
	return func(c *TopTypesCalculator) {
		c.typeFilter = f
	}
}

// NewTopTypesCalculator creates a new TopTypesCalculator.
func NewTopTypesCalculator(opts ...TopTypesOption) *TopTypesCalculator {
	c := &TopTypesCalculator{
		topN:           15,
		includeUntyped: false,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.typeFilter == nil {
		c.typeFilter = filter.NewTypeFilter()
	}
	return c
}

// TopTypeEntry represents one type with its allocation statistics.
type TopTypeEntry struct {
	TypeName    string  `json:"type_name"`
	Category    string  `json:"category"`
	Allocations int64   `json:"allocations"`
	TotalBytes  int64   `json:"total_bytes"`
	LeakedBytes int64   `json:"leaked_bytes"`
	Percentage  float64 `json:"percentage"`
}

// TopTypesResult holds the calculation result.
type TopTypesResult struct {
	TopTypes     []TopTypeEntry
	TotalBytes   int64
	UntypedBytes int64

	// TypeStacks maps each type to its observed call stacks and the bytes
	// allocated through each.
	TypeStacks map[string]map[string]int64
}

// Calculate ranks the given records' types by allocated bytes. Untyped
// records always count towards totals; whether they appear in the ranking
// depends on the WithUntyped option.
func (c *TopTypesCalculator) Calculate(records []*model.AllocationRecord) *TopTypesResult {
	result := &TopTypesResult{
		TopTypes:   make([]TopTypeEntry, 0),
		TypeStacks: make(map[string]map[string]int64),
	}

	if len(records) == 0 {
		return result
	}

	byType := make(map[string]*TopTypeEntry)

	for _, rec := range records {
		size := int64(rec.Size)
		result.TotalBytes += size

		name := rec.TypeNameOrEmpty()
		if !filter.UsableTypeName(name) {
			result.UntypedBytes += size
			if !c.includeUntyped {
				continue
			}
			name = "unknown"
		}

		entry, ok := byType[name]
		if !ok {
			entry = &TopTypeEntry{
				TypeName: name,
				Category: c.typeFilter.Categorize(name).String(),
			}
			byType[name] = entry
		}
		entry.Allocations++
		entry.TotalBytes += size
		if rec.IsLeaked {
			entry.LeakedBytes += size
		}

		if rec.HasStackTrace() {
			stack := profiling.StackToString(rec.StackTrace)
			if _, ok := result.TypeStacks[name]; !ok {
				result.TypeStacks[name] = make(map[string]int64)
			}
			result.TypeStacks[name][stack] += size
		}
	}

	effectiveTotal := result.TotalBytes
	if !c.includeUntyped {
		effectiveTotal -= result.UntypedBytes
	}

	entries := make([]TopTypeEntry, 0, len(byType))
	for _, entry := range byType {
		pct := 0.0
		if effectiveTotal > 0 {
			pct = float64(entry.TotalBytes) / float64(effectiveTotal) * 100
		}
		entry.Percentage = pct
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalBytes != entries[j].TotalBytes {
			return entries[i].TotalBytes > entries[j].TotalBytes
		}
		return entries[i].TypeName < entries[j].TypeName
	})

	topN := min(c.topN, len(entries))
	result.TopTypes = entries[:topN]

	return result
}

// HottestStacks returns the highest-volume call stacks for one type,
// at most maxStacks of them, ordered by bytes descending.
func (r *TopTypesResult) HottestStacks(typeName string, maxStacks int) []string {
	stacks, ok := r.TypeStacks[typeName]
	if !ok {
		return nil
	}

	type stackEntry struct {
		stack string
		bytes int64
	}
	entries := make([]stackEntry, 0, len(stacks))
	for stack, bytes := range stacks {
		entries = append(entries, stackEntry{stack: stack, bytes: bytes})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].bytes != entries[j].bytes {
			return entries[i].bytes > entries[j].bytes
		}
		return entries[i].stack < entries[j].stack
	})

	top := make([]string, 0, maxStacks)
	for i := 0; i < len(entries) && i < maxStacks; i++ {
		top = append(top, entries[i].stack)
	}
	return top
}

// CategoryTotals sums allocated bytes per type category.
func (r *TopTypesResult) CategoryTotals() map[string]int64 {
	totals := make(map[string]int64)
	for _, entry := range r.TopTypes {
		totals[entry.Category] += entry.TotalBytes
	}
	return totals
}
