package flamegraph

import (
	"fmt"
	"io"
	"os"

	"github.com/alloctrace/pkg/writer"
)

// JSONWriter writes flame graph data as JSON.
type JSONWriter = writer.JSONWriter[*FlameGraph]

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter() *JSONWriter {
	return writer.NewJSONWriter[*FlameGraph]()
}

// NewPrettyJSONWriter creates a JSON writer with pretty printing.
func NewPrettyJSONWriter() *JSONWriter {
	return writer.NewPrettyJSONWriter[*FlameGraph]()
}

// GzipWriter writes flame graph data as gzipped JSON.
type GzipWriter = writer.GzipWriter[*FlameGraph]

// NewGzipWriter creates a new gzip writer with default compression.
func NewGzipWriter() *GzipWriter {
	return writer.NewGzipWriter[*FlameGraph]()
}

// FoldedWriter writes flame graph data in collapsed/folded format,
// compatible with the flamegraph.pl script.
type FoldedWriter struct{}

// NewFoldedWriter creates a new folded format writer.
func NewFoldedWriter() *FoldedWriter {
	return &FoldedWriter{}
}

// Write writes the flame graph in folded format.
// Format: frame1;frame2;frame3 value
func (w *FoldedWriter) Write(fg *FlameGraph, out io.Writer) error {
	return w.writeNode(fg.Root, "", out)
}

func (w *FoldedWriter) writeNode(node *Node, prefix string, out io.Writer) error {
	currentStack := prefix
	if node.Name != "root" && node.Name != "" {
		if currentStack == "" {
			currentStack = node.Name
		} else {
			currentStack = currentStack + ";" + node.Name
		}
	}

	if len(node.Children) == 0 && currentStack != "" {
		_, err := fmt.Fprintf(out, "%s %d\n", currentStack, node.Value)
		return err
	}

	for _, child := range node.Children {
		if err := w.writeNode(child, currentStack, out); err != nil {
			return err
		}
	}

	return nil
}

// WriteToFile writes the flame graph in folded format to a file.
func (w *FoldedWriter) WriteToFile(fg *FlameGraph, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return w.Write(fg, file)
}
