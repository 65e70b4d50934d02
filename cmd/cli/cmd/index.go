package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/binindex"
)

var (
	indexInput   string
	indexRebuild bool
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the binary index for a log",
	Long: `Build the compact allocation index for a binary log and cache it
beside the log as <log>.idx.

The index records each allocation's file offset and size, plus per-batch
quick filters (value ranges and bloom filters) that let exports skip whole
record ranges without reading them. A cached index is reused as long as the
log's content hash and size are unchanged.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().StringVarP(&indexInput, "input", "i", "", "Input binary log file (required)")
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "Rebuild even when a valid cached index exists")
	indexCmd.MarkFlagRequired("input")
}

func runIndex(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	conf := GetConfig()

	builder := binindex.NewBuilder(log)
	cache := binindex.NewCache(log)

	var (
		idx       *binindex.BinaryIndex
		fromCache bool
		err       error
	)
	if indexRebuild {
		idx, err = builder.Build(indexInput, conf.Export.QuickFilterThreshold, conf.Export.QuickFilterBatchSize)
		if err == nil {
			err = cache.Save(idx)
		}
	} else {
		idx, fromCache, err = cache.LoadOrBuild(builder, indexInput, conf.Export.QuickFilterThreshold, conf.Export.QuickFilterBatchSize)
	}
	if err != nil {
		return err
	}

	source := "built"
	if fromCache {
		source = "cached"
	}
	log.Info("index %s for %s", source, indexInput)
	log.Info("  records:       %d", idx.Allocations.Count)
	log.Info("  content hash:  %016x", idx.SourceContentHash)
	log.Info("  batches:       %d", idx.Allocations.QuickFilter.BatchCount())
	if region := idx.StringTableRegion; region.Present() {
		log.Info("  string table:  %d strings, %d bytes", region.StringCount, region.ByteLength)
	}
	if info, err := os.Stat(binindex.CachePath(indexInput)); err == nil {
		log.Info("  cache file:    %s (%d bytes)", binindex.CachePath(indexInput), info.Size())
	}
	return nil
}
