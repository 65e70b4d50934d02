package flamegraph

import (
	"context"
	"io"

	"github.com/alloctrace/pkg/model"
	"github.com/alloctrace/pkg/profiling"
)

// Weight selects what a node's value measures.
type Weight int

const (
	// WeightBytes weights frames by allocated bytes.
	WeightBytes Weight = iota
	// WeightCount weights frames by allocation count.
	WeightCount
)

// GeneratorOptions holds configuration options for the flame graph generator.
type GeneratorOptions struct {
	// MinPercent is the minimum percentage for a node to be included.
	MinPercent float64

	// Weight selects bytes or allocation count as the node value.
	Weight Weight

	// LeakedOnly restricts the graph to allocations still live when
	// tracking stopped.
	LeakedOnly bool

	// GroupThreads prefixes each stack with the allocating thread group,
	// so per-thread subtrees stay separate.
	GroupThreads bool
}

// DefaultGeneratorOptions returns default generator options.
func DefaultGeneratorOptions() *GeneratorOptions {
	return &GeneratorOptions{
		MinPercent: 0.01, // 0.01% minimum
		Weight:     WeightBytes,
	}
}

// Generator builds flame graph data from allocation records.
type Generator struct {
	opts *GeneratorOptions
}

// NewGenerator creates a new flame graph generator.
func NewGenerator(opts *GeneratorOptions) *Generator {
	if opts == nil {
		opts = DefaultGeneratorOptions()
	}
	return &Generator{opts: opts}
}

// Generate builds a flame graph from the given records. Records without a
// stack trace contribute nothing.
func (g *Generator) Generate(ctx context.Context, records []*model.AllocationRecord) (*FlameGraph, error) {
	fg := NewFlameGraph()

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		g.appendStack(fg, rec)
	}

	fg.TotalBytes = fg.Root.Value
	fg.Cleanup(g.opts.MinPercent)
	fg.CalculateMaxDepth()

	return fg, nil
}

func (g *Generator) appendStack(fg *FlameGraph, rec *model.AllocationRecord) {
	if !rec.HasStackTrace() {
		return
	}
	if g.opts.LeakedOnly && !rec.IsLeaked {
		return
	}

	value := int64(rec.Size)
	if g.opts.Weight == WeightCount {
		value = 1
	}

	node := fg.Root
	node.Value += value
	node.Count++

	if g.opts.GroupThreads {
		node = node.Child(profiling.ExtractThreadGroup(rec.ThreadID))
		node.Value += value
		node.Count++
	}

	for _, frame := range rec.StackTrace {
		node = node.Child(frame)
		node.Value += value
		node.Count++
	}
}

// Writer defines the interface for writing flame graph output.
type Writer interface {
	Write(fg *FlameGraph, w io.Writer) error
}
