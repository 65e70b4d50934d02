package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/binlog"
	"github.com/alloctrace/pkg/errors"
	"github.com/alloctrace/pkg/model"
)

var (
	recordInput   string
	recordOutput  string
	recordNoTable bool
)

// recordCmd represents the record command
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Write a binary log from a JSON allocation dump",
	Long: `Convert a JSON array of allocation records into the binary log format
consumed by the export and index commands.

Frequently repeated strings (thread names, type names, stack frames) are
collected into a string table ahead of the records, so the log matches
what an instrumented process would emit. Mainly useful for tooling and
for preparing test fixtures.`,
	RunE: runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	recordCmd.Flags().StringVarP(&recordInput, "input", "i", "", "Input JSON file with an array of allocation records (required)")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Output binary log path (required)")
	recordCmd.Flags().BoolVar(&recordNoTable, "no-string-table", false, "Store every string inline instead of building a table")
	recordCmd.MarkFlagRequired("input")
	recordCmd.MarkFlagRequired("output")
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	data, err := os.ReadFile(recordInput)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to read input "+recordInput, err)
	}
	var records []*model.AllocationRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return errors.Wrap(errors.CodeInvalidInput, "input is not a JSON array of allocation records", err)
	}

	var table *binlog.StringTable
	if !recordNoTable {
		builder := binlog.NewStringTableBuilder(binlog.MinFrequencyForRecords(len(records)))
		for _, rec := range records {
			builder.RecordOptional(rec.VarName)
			builder.RecordOptional(rec.TypeName)
			builder.RecordOptional(rec.ScopeName)
			builder.Record(rec.ThreadID)
			for _, frame := range rec.StackTrace {
				builder.Record(frame)
			}
		}
		built, tableStats, err := builder.Build()
		if err != nil {
			return err
		}
		table = built
		log.Debug("string table: %d of %d unique strings admitted, ~%d bytes saved",
			tableStats.AdmittedStrings, tableStats.UniqueStrings, tableStats.BytesSaved)
	}

	w, err := binlog.NewWriter(recordOutput, table)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if err := w.WriteRecord(rec); err != nil {
			w.Close()
			return errors.Wrapf(errors.CodeSerializationError, "failed to write record %d", err, i)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	info, err := os.Stat(recordOutput)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to stat output "+recordOutput, err)
	}
	log.Info("wrote %d records to %s (%d bytes)", len(records), recordOutput, info.Size())
	return nil
}
