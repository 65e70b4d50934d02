// Package config provides configuration management for the alloctrace exporter.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Export   ExportConfig   `mapstructure:"export"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// ExportConfig holds export pipeline configuration.
type ExportConfig struct {
	// OutputDir is where generated JSON files are written.
	OutputDir string `mapstructure:"output_dir"`

	// SmallFileThreshold is the upper bound (bytes, inclusive) for the
	// simple direct strategy.
	SmallFileThreshold int64 `mapstructure:"small_file_threshold"`

	// StreamingThreshold is the upper bound (bytes, inclusive) for the
	// index-optimized strategy; larger files stream.
	StreamingThreshold int64 `mapstructure:"streaming_threshold"`

	// ForceStrategy overrides size-based selection when non-empty
	// (simple_direct, index_optimized, fully_streaming).
	ForceStrategy string `mapstructure:"force_strategy"`

	// QuickFilterThreshold is the record count above which batch
	// pre-filter data is built during indexing. Used by the
	// index-optimized strategy.
	QuickFilterThreshold uint32 `mapstructure:"quick_filter_threshold"`

	// QuickFilterBatchSize is the number of records per pre-filter batch
	// for the index-optimized strategy.
	QuickFilterBatchSize int `mapstructure:"quick_filter_batch_size"`

	// StreamingQuickFilterThreshold is the quick-filter build threshold
	// for the fully streaming strategy. Higher than the medium-file
	// threshold so index-build cost stays sub-linear on huge logs
	// (0 = fall back to QuickFilterThreshold).
	StreamingQuickFilterThreshold uint32 `mapstructure:"streaming_quick_filter_threshold"`

	// StreamingQuickFilterBatchSize is records per pre-filter batch for
	// the fully streaming strategy. Larger batches amortize per-batch
	// bloom cost over bigger files (0 = fall back to QuickFilterBatchSize).
	StreamingQuickFilterBatchSize int `mapstructure:"streaming_quick_filter_batch_size"`

	// BufferSize is the read/write buffer size in bytes for streamed exports.
	BufferSize int `mapstructure:"buffer_size"`

	// FlushWatermark is the buffered-output byte count that triggers a
	// flush in the fully streaming strategy.
	FlushWatermark int `mapstructure:"flush_watermark"`

	// ParallelDecode enables worker fan-out over index ranges in the
	// streaming strategy.
	ParallelDecode bool `mapstructure:"parallel_decode"`

	// MaxWorkers caps parallel decode workers (0 = derive from CPU count).
	MaxWorkers int `mapstructure:"max_workers"`

	// IndexCache enables persisting built indexes beside the source log.
	IndexCache bool `mapstructure:"index_cache"`
}

// DatabaseConfig holds database connection configuration for export run history.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/alloctrace")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
		} else if os.IsNotExist(err) {
			// File specified but doesn't exist, use defaults
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Export defaults
	v.SetDefault("export.output_dir", "./output")
	v.SetDefault("export.small_file_threshold", 150*1024)
	v.SetDefault("export.streaming_threshold", 1024*1024)
	v.SetDefault("export.quick_filter_threshold", 1000)
	v.SetDefault("export.quick_filter_batch_size", 1000)
	v.SetDefault("export.streaming_quick_filter_threshold", 10000)
	v.SetDefault("export.streaming_quick_filter_batch_size", 5000)
	v.SetDefault("export.buffer_size", 64*1024)
	v.SetDefault("export.flush_watermark", 1024*1024)
	v.SetDefault("export.parallel_decode", false)
	v.SetDefault("export.index_cache", true)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.database", "./alloctrace.db")
	v.SetDefault("database.max_conns", 10)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Export.SmallFileThreshold <= 0 {
		return fmt.Errorf("small file threshold must be positive")
	}
	if c.Export.StreamingThreshold < c.Export.SmallFileThreshold {
		return fmt.Errorf("streaming threshold must be >= small file threshold")
	}
	if c.Export.QuickFilterBatchSize < 1 {
		return fmt.Errorf("quick filter batch size must be at least 1")
	}
	if c.Export.StreamingQuickFilterBatchSize < 0 {
		return fmt.Errorf("streaming quick filter batch size must not be negative")
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.Database == "" {
			return fmt.Errorf("sqlite database path is required")
		}
	case "postgres", "mysql":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	return nil
}

// EnsureOutputDir creates the output directory if it doesn't exist.
func (c *Config) EnsureOutputDir() error {
	if c.Export.OutputDir == "" {
		return nil
	}
	return os.MkdirAll(c.Export.OutputDir, 0755)
}

// OutputPath returns the path of an output file under the output directory.
func (c *Config) OutputPath(name string) string {
	return filepath.Join(c.Export.OutputDir, name)
}
