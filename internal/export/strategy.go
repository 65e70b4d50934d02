package export

import (
	"strings"

	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/utils"
)

// Strategy is one of the three size-adaptive execution modes.
type Strategy int

const (
	// StrategySimpleDirect decodes the whole log in memory; for small
	// files, where index-building overhead exceeds its benefit.
	StrategySimpleDirect Strategy = iota
	// StrategyIndexOptimized builds a quick-filtered index and reads
	// selectively; for medium files.
	StrategyIndexOptimized
	// StrategyFullyStreaming builds a lighter index and streams through
	// bounded buffers; memory stays constant regardless of record count.
	StrategyFullyStreaming
)

// String returns the strategy's canonical name.
func (s Strategy) String() string {
	switch s {
	case StrategySimpleDirect:
		return "simple_direct"
	case StrategyIndexOptimized:
		return "index_optimized"
	case StrategyFullyStreaming:
		return "fully_streaming"
	default:
		return "unknown"
	}
}

// ParseStrategy resolves a strategy name from config or CLI flags.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple_direct", "simple", "direct":
		return StrategySimpleDirect, nil
	case "index_optimized", "index":
		return StrategyIndexOptimized, nil
	case "fully_streaming", "streaming":
		return StrategyFullyStreaming, nil
	default:
		return 0, errors.Newf(errors.CodeInvalidInput, "unknown export strategy %q", s)
	}
}

// Selector picks the execution strategy for one export call.
type Selector struct {
	smallFileThreshold int64
	streamingThreshold int64
	forced             *Strategy
	logger             utils.Logger
}

// NewSelector builds a selector from the export config. An empty
// force_strategy falls back to size-based selection; an unparseable one is
// a config error.
func NewSelector(cfg *config.ExportConfig, logger utils.Logger) (*Selector, error) {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	s := &Selector{
		smallFileThreshold: cfg.SmallFileThreshold,
		streamingThreshold: cfg.StreamingThreshold,
		logger:             logger,
	}
	if cfg.ForceStrategy != "" {
		forced, err := ParseStrategy(cfg.ForceStrategy)
		if err != nil {
			return nil, errors.Wrap(errors.CodeConfigError, "invalid force_strategy", err)
		}
		s.forced = &forced
	}
	return s, nil
}

// Select picks the strategy for a file of the given size. Boundaries are
// inclusive on the cheaper strategy: a file exactly at a threshold stays
// below it. A forced strategy short-circuits the size decision entirely.
func (s *Selector) Select(fileSize int64) Strategy {
	if s.forced != nil {
		s.logger.Info("strategy %s forced by configuration (file size %d)", *s.forced, fileSize)
		return *s.forced
	}
	switch {
	case fileSize <= s.smallFileThreshold:
		return StrategySimpleDirect
	case fileSize <= s.streamingThreshold:
		return StrategyIndexOptimized
	default:
		return StrategyFullyStreaming
	}
}

// Forced returns the forced strategy, if any.
func (s *Selector) Forced() (Strategy, bool) {
	if s.forced == nil {
		return 0, false
	}
	return *s.forced, true
}
