package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered at info level")
	}
	for _, want := range []string{"info message", "warn message", "error message"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
}

func TestDefaultLogger_Formatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelDebug, &buf)

	logger.Info("indexed %d records in %s", 42, "1.2s")

	if !strings.Contains(buf.String(), "indexed 42 records in 1.2s") {
		t.Errorf("Formatted message missing: %q", buf.String())
	}
}

func TestDefaultLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)

	child := logger.WithField("strategy", "index_optimized").WithFields(map[string]interface{}{
		"file": "app.alloc",
	})
	child.Info("export started")

	output := buf.String()
	if !strings.Contains(output, "strategy=index_optimized") {
		t.Errorf("Missing strategy field: %q", output)
	}
	if !strings.Contains(output, "file=app.alloc") {
		t.Errorf("Missing file field: %q", output)
	}

	// Parent logger must be unaffected.
	buf.Reset()
	logger.Info("plain")
	if strings.Contains(buf.String(), "strategy=") {
		t.Errorf("Parent logger leaked child fields: %q", buf.String())
	}
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelError, &buf)

	logger.Info("hidden")
	logger.SetLevel(LevelDebug)
	logger.Debug("visible")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("Info message should be filtered at error level")
	}
	if !strings.Contains(output, "visible") {
		t.Error("Debug message should appear after SetLevel(LevelDebug)")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestNullLogger(t *testing.T) {
	logger := &NullLogger{}
	// Must not panic and must chain.
	logger.Debug("a")
	logger.Info("b")
	logger.Warn("c")
	logger.Error("d")
	if logger.WithField("k", "v") != logger {
		t.Error("WithField should return the same NullLogger")
	}
}
