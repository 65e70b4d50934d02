package export

import (
	"fmt"
	"math"

	"github.com/alloctrace/internal/binindex"
	"github.com/alloctrace/pkg/model"
)

// RecordFilter is a record-level predicate applied while exporting.
type RecordFilter interface {
	Name() string
	Matches(rec *model.AllocationRecord) bool
}

// BatchPrefilter is implemented by filters that can reject a whole
// quick-filter batch without decoding any record. Implementations must
// fail open: a true result means "maybe", false means "provably no match".
type BatchPrefilter interface {
	BatchMightMatch(qf *binindex.QuickFilterData, batch int) bool
}

// SizeAtLeast matches records whose size is at least Min bytes.
type SizeAtLeast struct {
	Min uint64
}

func (f SizeAtLeast) Name() string { return fmt.Sprintf("size>=%d", f.Min) }

func (f SizeAtLeast) Matches(rec *model.AllocationRecord) bool {
	return rec.Size >= f.Min
}

// BatchMightMatch rejects batches whose exact size range lies entirely
// below the minimum.
func (f SizeAtLeast) BatchMightMatch(qf *binindex.QuickFilterData, batch int) bool {
	return qf.SizeRangeMightOverlapBatch(batch, f.Min, math.MaxUint64)
}

// HasDealloc matches records with a recorded deallocation time.
type HasDealloc struct{}

func (HasDealloc) Name() string { return "dealloc_present" }

func (HasDealloc) Matches(rec *model.AllocationRecord) bool {
	return rec.HasDealloc()
}

// HasStackTrace matches records with a non-empty stack trace.
type HasStackTrace struct{}

func (HasStackTrace) Name() string { return "stack_trace_present" }

func (HasStackTrace) Matches(rec *model.AllocationRecord) bool {
	return rec.HasStackTrace()
}

// TypeNameUsable matches records whose type name is present, non-empty and
// not the "unknown" placeholder.
type TypeNameUsable struct{}

func (TypeNameUsable) Name() string { return "type_name_usable" }

func (TypeNameUsable) Matches(rec *model.AllocationRecord) bool {
	name := rec.TypeNameOrEmpty()
	return name != "" && name != "unknown"
}

// ThreadEquals matches records from one thread. Its batch pre-filter uses
// the thread bloom filter, which may false-positive but never
// false-negative.
type ThreadEquals struct {
	Thread string
}

func (f ThreadEquals) Name() string { return "thread=" + f.Thread }

func (f ThreadEquals) Matches(rec *model.AllocationRecord) bool {
	return rec.ThreadID == f.Thread
}

func (f ThreadEquals) BatchMightMatch(qf *binindex.QuickFilterData, batch int) bool {
	return qf.ThreadMightBeInBatch(batch, f.Thread)
}

// TypeEquals matches records of one exact type, pre-filtered through the
// type bloom filter.
type TypeEquals struct {
	TypeName string
}

func (f TypeEquals) Name() string { return "type=" + f.TypeName }

func (f TypeEquals) Matches(rec *model.AllocationRecord) bool {
	return rec.TypeNameOrEmpty() == f.TypeName
}

func (f TypeEquals) BatchMightMatch(qf *binindex.QuickFilterData, batch int) bool {
	return qf.TypeMightBeInBatch(batch, f.TypeName)
}

// matchesAll applies every filter to one record.
func matchesAll(filters []RecordFilter, rec *model.AllocationRecord) bool {
	for _, f := range filters {
		if !f.Matches(rec) {
			return false
		}
	}
	return true
}

// batchMightMatch consults every pre-filter-capable filter; a batch is
// skipped only when some filter proves it cannot match. Absent quick-filter
// data fails open.
func batchMightMatch(filters []RecordFilter, qf *binindex.QuickFilterData, batch int) bool {
	if qf == nil {
		return true
	}
	for _, f := range filters {
		if pf, ok := f.(BatchPrefilter); ok {
			if !pf.BatchMightMatch(qf, batch) {
				return false
			}
		}
	}
	return true
}
