package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/errors"
)

func testExportConfig() *config.ExportConfig {
	return &config.ExportConfig{
		SmallFileThreshold:   150 * 1024,
		StreamingThreshold:   1024 * 1024,
		QuickFilterThreshold: 1000,
		QuickFilterBatchSize: 1000,
	}
}

func TestSelector_SizeBoundaries(t *testing.T) {
	selector, err := NewSelector(testExportConfig(), nil)
	require.NoError(t, err)

	tests := []struct {
		name     string
		size     int64
		expected Strategy
	}{
		{"tiny file", 1024, StrategySimpleDirect},
		{"exactly at small threshold", 150 * 1024, StrategySimpleDirect},
		{"one past small threshold", 150*1024 + 1, StrategyIndexOptimized},
		{"mid range", 500 * 1024, StrategyIndexOptimized},
		{"exactly at streaming threshold", 1024 * 1024, StrategyIndexOptimized},
		{"one past streaming threshold", 1024*1024 + 1, StrategyFullyStreaming},
		{"large file", 512 * 1024 * 1024, StrategyFullyStreaming},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, selector.Select(tt.size))
		})
	}
}

func TestSelector_SelectionIsDeterministic(t *testing.T) {
	selector, err := NewSelector(testExportConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, StrategyIndexOptimized, selector.Select(500*1024))
	}
}

func TestSelector_ForcedStrategyOverridesSize(t *testing.T) {
	cfg := testExportConfig()
	cfg.ForceStrategy = "fully_streaming"
	selector, err := NewSelector(cfg, nil)
	require.NoError(t, err)

	// Force applies regardless of where the size falls.
	for _, size := range []int64{1024, 500 * 1024, 5 * 1024 * 1024} {
		assert.Equal(t, StrategyFullyStreaming, selector.Select(size))
	}

	forced, ok := selector.Forced()
	assert.True(t, ok)
	assert.Equal(t, StrategyFullyStreaming, forced)
}

func TestSelector_InvalidForcedStrategy(t *testing.T) {
	cfg := testExportConfig()
	cfg.ForceStrategy = "warp_speed"

	_, err := NewSelector(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected Strategy
		wantErr  bool
	}{
		{"simple_direct", StrategySimpleDirect, false},
		{"direct", StrategySimpleDirect, false},
		{"index_optimized", StrategyIndexOptimized, false},
		{"INDEX", StrategyIndexOptimized, false},
		{"fully_streaming", StrategyFullyStreaming, false},
		{" streaming ", StrategyFullyStreaming, false},
		{"", 0, true},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestStrategy_StringRoundTrip(t *testing.T) {
	for _, s := range []Strategy{StrategySimpleDirect, StrategyIndexOptimized, StrategyFullyStreaming} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	assert.Equal(t, "unknown", Strategy(99).String())
}
