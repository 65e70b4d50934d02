package writer

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestJSONWriter_Write(t *testing.T) {
	w := NewJSONWriter[sample]()
	var buf bytes.Buffer

	if err := w.Write(sample{Name: "alloc", Value: 42}, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if got.Name != "alloc" || got.Value != 42 {
		t.Errorf("Unexpected round trip result: %+v", got)
	}
}

func TestJSONWriter_Pretty(t *testing.T) {
	w := NewPrettyJSONWriter[sample]()
	var buf bytes.Buffer

	if err := w.Write(sample{Name: "x", Value: 1}, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\n")) {
		t.Error("Expected pretty output to contain newlines")
	}
}

func TestJSONWriter_WriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewJSONWriter[[]sample]()

	data := []sample{{Name: "a", Value: 1}, {Name: "b", Value: 2}}
	if err := w.WriteToFile(data, path); err != nil {
		t.Fatalf("WriteToFile failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var got []sample
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected 2 elements, got %d", len(got))
	}
}

func TestGzipWriter_RoundTrip(t *testing.T) {
	w := NewGzipWriter[sample]()
	var buf bytes.Buffer

	if err := w.Write(sample{Name: "gz", Value: 7}, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	gr, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("Output is not valid gzip: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	var got sample
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Decompressed output is not valid JSON: %v", err)
	}
	if got.Name != "gz" || got.Value != 7 {
		t.Errorf("Unexpected round trip result: %+v", got)
	}
}
