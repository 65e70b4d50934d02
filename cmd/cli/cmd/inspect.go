package cmd

import (
	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/internal/statistics"
	"github.com/alloctrace/pkg/model"
)

var (
	inspectInput      string
	inspectTopN       int
	inspectMaxThreads int
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarize the contents of a binary allocation log",
	Long: `Read a binary allocation log and print its header, string table, top
allocated types and per-thread totals without exporting anything. Useful
for checking what a log contains and whether it decodes cleanly end to end.`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectInput, "input", "i", "", "Input binary log file (required)")
	inspectCmd.Flags().IntVar(&inspectTopN, "top", 10, "Number of top types to show")
	inspectCmd.Flags().IntVar(&inspectMaxThreads, "threads", 10, "Number of threads to show")
	inspectCmd.MarkFlagRequired("input")
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	scanner, err := binlog.OpenScanner(inspectInput)
	if err != nil {
		return err
	}
	defer scanner.Close()

	header := scanner.Header()
	log.Info("log file: %s (%d bytes)", inspectInput, scanner.FileSize())
	log.Info("  format version: %d", header.Version)
	log.Info("  records:        %d", header.RecordCount)
	if region := scanner.StringTableRegion(); region.Present() {
		log.Info("  string table:   %d strings, %d bytes (compression %d)",
			region.StringCount, region.ByteLength, region.Compression)
	} else {
		log.Info("  string table:   none")
	}

	var (
		records     []*model.AllocationRecord
		deallocated int
		leaked      int
		stacks      int
	)
	for {
		scanned, err := scanner.Next()
		if err != nil {
			return err
		}
		if scanned == nil {
			break
		}
		rec, err := binlog.DecodeRecordValue(scanned.Value, scanner.Table())
		if err != nil {
			return err
		}
		records = append(records, rec)
		if rec.HasDealloc() {
			deallocated++
		}
		if rec.IsLeaked {
			leaked++
		}
		if rec.HasStackTrace() {
			stacks++
		}
	}

	threadStats := statistics.NewThreadStatsCalculator(
		statistics.WithMaxThreads(inspectMaxThreads),
	).Calculate(records)

	log.Info("  allocated:      %d bytes total", threadStats.TotalBytes)
	log.Info("  deallocated:    %d records", deallocated)
	log.Info("  leaked:         %d records", leaked)
	log.Info("  stack traces:   %d records", stacks)

	if region, err := scanner.ReadMetricsRegion(); err == nil && region != nil {
		log.Info("  advanced metrics: %d entries", len(region.Metrics))
	}

	topTypes := statistics.NewTopTypesCalculator(
		statistics.WithTopN(inspectTopN),
	).Calculate(records)

	if len(topTypes.TopTypes) > 0 {
		log.Info("top types by bytes:")
		for _, entry := range topTypes.TopTypes {
			log.Info("  %6.2f%%  %10d bytes  %6d allocs  [%s] %s",
				entry.Percentage, entry.TotalBytes, entry.Allocations,
				entry.Category, entry.TypeName)
		}
		if topTypes.UntypedBytes > 0 {
			log.Info("  (untyped: %d bytes)", topTypes.UntypedBytes)
		}
	}

	if len(threadStats.Threads) > 0 {
		log.Info("threads by bytes:")
		for _, entry := range threadStats.Threads {
			log.Info("  %6.2f%%  %10d bytes  %6d allocs  %s",
				entry.Percentage, entry.TotalBytes, entry.Allocations, entry.ThreadID)
		}
	}
	return nil
}
