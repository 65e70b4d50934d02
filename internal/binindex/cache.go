package binindex

import (
	"encoding/json"
	"os"

	"github.com/alloctrace/pkg/compression"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/utils"
)

// CacheSuffix is appended to the log path to name its cached index.
const CacheSuffix = ".idx"

// Cache persists built indexes beside their logs as zstd-compressed JSON.
// Entries are keyed by (path, content hash); a hash or format-version
// mismatch is treated as a miss so the caller rebuilds. Concurrent access
// to one cache entry must be synchronized by the caller.
type Cache struct {
	logger utils.Logger
}

// NewCache creates a cache. A nil logger falls back to the null logger.
func NewCache(logger utils.Logger) *Cache {
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	return &Cache{logger: logger}
}

// CachePath returns where the index for the given log is stored.
func CachePath(logPath string) string {
	return logPath + CacheSuffix
}

// Save writes the index next to its source log.
func (c *Cache) Save(idx *BinaryIndex) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return errors.Wrap(errors.CodeSerializationError, "failed to encode index", err)
	}

	comp, err := compression.NewZstdCompressor(compression.LevelDefault)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to initialize index compressor", err)
	}
	defer comp.Close()

	compressed, err := comp.Compress(data)
	if err != nil {
		return errors.Wrap(errors.CodeSerializationError, "failed to compress index", err)
	}

	path := CachePath(idx.SourceFilePath)
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write index cache "+path, err)
	}
	c.logger.Debug("cached index for %s (%d -> %d bytes)", idx.SourceFilePath, len(data), len(compressed))
	return nil
}

// Load returns the cached index for logPath if one exists and still
// matches the file's content hash and the current index format.
// A stale or missing entry returns a NOT_FOUND error.
func (c *Cache) Load(logPath string) (*BinaryIndex, error) {
	path := CachePath(logPath)
	compressed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, "no cached index for "+logPath)
		}
		return nil, errors.Wrap(errors.CodeIOError, "failed to read index cache "+path, err)
	}

	comp, err := compression.NewZstdCompressor(compression.LevelDefault)
	if err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to initialize index decompressor", err)
	}
	defer comp.Close()

	data, err := comp.Decompress(compressed)
	if err != nil {
		return nil, errors.Wrap(errors.CodeCorruptedData, "failed to decompress index cache "+path, err)
	}

	var idx BinaryIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errors.Wrap(errors.CodeCorruptedData, "failed to decode index cache "+path, err)
	}

	if idx.FormatVersion != IndexFormatVersion {
		c.logger.Debug("index cache %s has format version %d, want %d", path, idx.FormatVersion, IndexFormatVersion)
		return nil, errors.New(errors.CodeNotFound, "cached index format version mismatch")
	}
	valid, err := idx.IsValidForFile(logPath)
	if err != nil {
		return nil, err
	}
	if !valid {
		c.logger.Debug("index cache %s is stale, source changed", path)
		return nil, errors.New(errors.CodeNotFound, "cached index is stale")
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// LoadOrBuild returns the cached index when valid, otherwise builds one
// with the given parameters and saves it. The boolean reports a cache hit.
// A cached index built with different quick-filter parameters counts as a
// miss: each strategy needs its own filter granularity.
func (c *Cache) LoadOrBuild(builder *Builder, logPath string, quickFilterThreshold uint32, batchSize int) (*BinaryIndex, bool, error) {
	idx, err := c.Load(logPath)
	if err == nil {
		if idx.MatchesQuickFilterParams(quickFilterThreshold, batchSize) {
			return idx, true, nil
		}
		c.logger.Debug("index cache for %s built with different quick-filter parameters, rebuilding", logPath)
	} else if errors.GetErrorCode(err) != errors.CodeNotFound {
		return nil, false, err
	}

	idx, err = builder.Build(logPath, quickFilterThreshold, batchSize)
	if err != nil {
		return nil, false, err
	}
	if err := c.Save(idx); err != nil {
		// A cache write failure must not fail the export.
		c.logger.Warn("failed to cache index for %s: %v", logPath, err)
	}
	return idx, false, nil
}
