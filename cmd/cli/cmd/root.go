package cmd

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/pprof"
	"github.com/alloctrace/pkg/telemetry"
	"github.com/alloctrace/pkg/utils"
)

var (
	// Global flags
	verbose    bool
	configPath string

	pprofEnabled  bool
	pprofDir      string
	pprofProfiles string
	pprofInterval time.Duration

	logger utils.Logger
	cfg    *config.Config

	telemetryShutdown func(context.Context) error
	pprofCollector    *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "alloctrace",
	Short: "Index and export binary memory allocation logs",
	Long: `alloctrace turns binary allocation logs produced by a memory profiler
into analysis-ready JSON views.

It builds a compact offset index with bloom-filter quick filters over each
log, picks an export strategy based on input size (in-memory, index-driven,
or fully streaming), and writes one JSON file per analysis view: memory,
lifetime, performance, complex types, and unsafe/FFI.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewDefaultLogger(logLevel, os.Stdout)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		if telemetry.Enabled() {
			shutdown, err := telemetry.Init(cmd.Context())
			if err != nil {
				logger.Warn("telemetry init failed: %v", err)
			} else {
				telemetryShutdown = shutdown
			}
		}

		if pprofEnabled {
			profiles, err := pprof.ParseProfileTypes(pprofProfiles)
			if err != nil {
				return err
			}
			collector, err := pprof.NewCollector(&pprof.Config{
				OutputDir:   pprofDir,
				Profiles:    profiles,
				Interval:    pprofInterval,
				CPUDuration: 10 * time.Second,
			})
			if err != nil {
				return err
			}
			if err := collector.Start(); err != nil {
				return err
			}
			pprofCollector = collector
			logger.Info("pprof collection started (dir: %s)", pprofDir)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if pprofCollector != nil {
			if err := pprofCollector.Stop(); err != nil {
				logger.Warn("failed to stop pprof collector: %v", err)
			} else {
				logger.Info("pprof data saved to: %s", pprofCollector.OutputDir())
			}
		}
		if telemetryShutdown != nil {
			return telemetryShutdown(cmd.Context())
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: ./config.yaml, ./configs/config.yaml)")

	rootCmd.PersistentFlags().BoolVar(&pprofEnabled, "pprof", false, "Enable self-profiling during the run")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "./pprof", "Output directory for pprof data")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap,goroutine", "Comma-separated profile types: cpu,heap,goroutine,block,mutex,allocs")
	rootCmd.PersistentFlags().DurationVar(&pprofInterval, "pprof-interval", 30*time.Second, "Snapshot interval")

	binName := BinName()
	rootCmd.Example = `  # Export all views from a binary allocation log
  ` + binName + ` export -i ./alloc.bin

  # Export only the lifetime and performance views
  ` + binName + ` export -i ./alloc.bin --types lifetime,performance

  # Force the streaming strategy and publish the results
  ` + binName + ` export -i ./alloc.bin --strategy fully_streaming --publish

  # Build or refresh the index for a log
  ` + binName + ` index -i ./alloc.bin

  # Show what a log contains without exporting
  ` + binName + ` inspect -i ./alloc.bin

  # Render the allocation stacks as a flame graph
  ` + binName + ` flamegraph -i ./alloc.bin -o flame.json

  # Convert a JSON allocation dump into a binary log
  ` + binName + ` record -i ./dump.json -o ./alloc.bin`
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}
