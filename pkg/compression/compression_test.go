package compression

import (
	"bytes"
	"testing"
)

func testRoundTrip(t *testing.T, c Compressor, data []byte) {
	t.Helper()

	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("%s: Compress failed: %v", c.Name(), err)
	}
	decompressed, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("%s: Decompress failed: %v", c.Name(), err)
	}
	if !bytes.Equal(data, decompressed) {
		t.Errorf("%s: round trip mismatch: %d bytes in, %d bytes out", c.Name(), len(data), len(decompressed))
	}
}

func TestGzipCompressor_RoundTrip(t *testing.T) {
	c := NewGzipCompressor(LevelDefault)
	testRoundTrip(t, c, []byte("allocation index payload with repeated repeated repeated content"))
	testRoundTrip(t, c, []byte{})
}

func TestZstdCompressor_RoundTrip(t *testing.T) {
	c, err := NewZstdCompressor(LevelDefault)
	if err != nil {
		t.Fatalf("NewZstdCompressor failed: %v", err)
	}
	defer c.Close()

	testRoundTrip(t, c, bytes.Repeat([]byte("index-cache-entry;"), 1000))
	testRoundTrip(t, c, []byte{})
}

func TestZstdCompressor_Ratio(t *testing.T) {
	c, err := NewZstdCompressor(LevelDefault)
	if err != nil {
		t.Fatalf("NewZstdCompressor failed: %v", err)
	}
	defer c.Close()

	data := bytes.Repeat([]byte("0123456789abcdef"), 4096)
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("Expected compression on repetitive input: %d -> %d", len(data), len(compressed))
	}
}

func TestNoOpCompressor(t *testing.T) {
	c := NewNoOpCompressor()
	data := []byte("unchanged")

	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if !bytes.Equal(compressed, data) {
		t.Error("NoOp compressor modified data")
	}

	if c.Type() != TypeNone {
		t.Errorf("Expected TypeNone, got %d", c.Type())
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		compType Type
		wantName string
		wantErr  bool
	}{
		{TypeGzip, "gzip", false},
		{TypeZstd, "zstd", false},
		{TypeNone, "none", false},
		{Type(42), "", true},
	}

	for _, tt := range tests {
		c, err := New(tt.compType, LevelDefault)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%d): expected error", tt.compType)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%d): unexpected error: %v", tt.compType, err)
			continue
		}
		if c.Name() != tt.wantName {
			t.Errorf("New(%d): expected name %q, got %q", tt.compType, tt.wantName, c.Name())
		}
		Close(c)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	defer Close(c)

	testRoundTrip(t, c, []byte("default compressor payload"))
}
