package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/service"
)

var (
	// Export command flags
	exportInput    string
	exportKey      string
	exportBaseName string
	exportTypes    string
	exportStrategy string
	exportOutDir   string
	exportPublish  bool
	exportForce    bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export JSON views from a binary allocation log",
	Long: `Export analysis views from a binary allocation log.

The export strategy is chosen from the input size: small logs are decoded
in memory, medium logs are read selectively through a cached index, and
large logs are streamed with bounded memory. Each requested view is written
to <output_dir>/<base>_<view>.json.

Available views:
  - memory_analysis : every allocation with its core attributes
  - lifetime        : allocations with a recorded deallocation
  - performance     : allocations of 1 KiB and larger
  - complex_types   : typed allocations of 64 bytes and larger
  - unsafe_ffi      : allocations with captured stack traces

Each run is recorded in the run database; an unchanged log is skipped
unless --force is given.`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	binName := BinName()
	exportCmd.Example = `  # Export all five views
  ` + binName + ` export -i ./alloc.bin

  # Export from object storage and publish the results back
  ` + binName + ` export --key intake/alloc.bin --publish

  # Only the lifetime view, with a custom base name
  ` + binName + ` export -i ./alloc.bin --types lifetime --base snapshot42`

	exportCmd.Flags().StringVarP(&exportInput, "input", "i", "", "Input binary log file")
	exportCmd.Flags().StringVar(&exportKey, "key", "", "Object storage key to fetch the log from (alternative to --input)")
	exportCmd.Flags().StringVar(&exportBaseName, "base", "", "Base name for output files (default: input file name)")
	exportCmd.Flags().StringVarP(&exportTypes, "types", "t", "", "Comma-separated views to export (default: all)")
	exportCmd.Flags().StringVarP(&exportStrategy, "strategy", "s", "", "Force an export strategy: simple_direct, index_optimized, fully_streaming")
	exportCmd.Flags().StringVarP(&exportOutDir, "output", "o", "", "Output directory (overrides config)")
	exportCmd.Flags().BoolVar(&exportPublish, "publish", false, "Upload the view files to object storage")
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "Export even when a completed run covers this log content")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	conf := GetConfig()

	if exportStrategy != "" {
		conf.Export.ForceStrategy = exportStrategy
	}
	if exportOutDir != "" {
		conf.Export.OutputDir = exportOutDir
	}

	svc := service.New(conf, log)
	if err := svc.Initialize(); err != nil {
		return err
	}
	defer svc.Close()

	var types []string
	if exportTypes != "" {
		for _, name := range strings.Split(exportTypes, ",") {
			types = append(types, strings.TrimSpace(name))
		}
	}

	report, err := svc.Run(cmd.Context(), &service.RunRequest{
		SourcePath: exportInput,
		SourceKey:  exportKey,
		BaseName:   exportBaseName,
		Types:      types,
		Publish:    exportPublish,
		Force:      exportForce,
	})
	if err != nil {
		return err
	}

	if report.Skipped {
		log.Info("nothing to do: run %s already covers this log content (use --force to rerun)", report.PreviousRun)
		return nil
	}

	stats := report.Stats
	log.Info("run %s finished: %s strategy, %d records, %.0f records/s",
		report.RunUUID, stats.StrategyName, stats.RecordsProcessed, stats.Throughput())
	for _, ts := range stats.PerType {
		log.Info("  %-20s %8d rows  %10d bytes  %s", ts.JsonType, ts.RecordsWritten, ts.BytesWritten, ts.OutputPath)
	}
	for _, key := range report.PublishedKeys {
		log.Info("  published %s", key)
	}
	return nil
}
