package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/internal/flamegraph"
	"github.com/alloctrace/pkg/errors"
)

var (
	flameInput      string
	flameOutput     string
	flameFormat     string
	flameWeight     string
	flameLeakedOnly bool
	flameByThread   bool
	flameMinPercent float64
)

// flamegraphCmd represents the flamegraph command
var flamegraphCmd = &cobra.Command{
	Use:   "flamegraph",
	Short: "Render allocation stack traces as a flame graph",
	Long: `Build a flame graph from the stack traces in a binary allocation log,
weighted by allocated bytes. Output is JSON for d3-flamegraph style viewers
or the folded format consumed by flamegraph.pl.`,
	RunE: runFlamegraph,
}

func init() {
	rootCmd.AddCommand(flamegraphCmd)

	flamegraphCmd.Flags().StringVarP(&flameInput, "input", "i", "", "Input binary log file (required)")
	flamegraphCmd.Flags().StringVarP(&flameOutput, "output", "o", "", "Output file (required)")
	flamegraphCmd.Flags().StringVar(&flameFormat, "format", "json", "Output format: json, json-gz or folded")
	flamegraphCmd.Flags().StringVar(&flameWeight, "weight", "bytes", "Node weight: bytes or count")
	flamegraphCmd.Flags().BoolVar(&flameLeakedOnly, "leaked-only", false, "Only include leaked allocations")
	flamegraphCmd.Flags().BoolVar(&flameByThread, "by-thread", false, "Group stacks under their thread group")
	flamegraphCmd.Flags().Float64Var(&flameMinPercent, "min-percent", 0.01, "Minimum node percentage to keep")
	flamegraphCmd.MarkFlagRequired("input")
	flamegraphCmd.MarkFlagRequired("output")
}

func runFlamegraph(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	opts := &flamegraph.GeneratorOptions{
		MinPercent:   flameMinPercent,
		LeakedOnly:   flameLeakedOnly,
		GroupThreads: flameByThread,
	}
	switch strings.ToLower(flameWeight) {
	case "bytes":
		opts.Weight = flamegraph.WeightBytes
	case "count":
		opts.Weight = flamegraph.WeightCount
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown weight %q (valid: bytes, count)", flameWeight)
	}

	records, err := binlog.NewParser(log).LoadAllocations(flameInput)
	if err != nil {
		return err
	}

	fg, err := flamegraph.NewGenerator(opts).Generate(cmd.Context(), records)
	if err != nil {
		return err
	}

	switch strings.ToLower(flameFormat) {
	case "json":
		err = flamegraph.NewJSONWriter().WriteToFile(fg, flameOutput)
	case "json-gz":
		err = flamegraph.NewGzipWriter().WriteToFile(fg, flameOutput)
	case "folded":
		err = flamegraph.NewFoldedWriter().WriteToFile(fg, flameOutput)
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown format %q (valid: json, json-gz, folded)", flameFormat)
	}
	if err != nil {
		return err
	}

	log.Info("flame graph written to %s (%d bytes total, depth %d)",
		flameOutput, fg.TotalBytes, fg.MaxDepth)
	return nil
}
