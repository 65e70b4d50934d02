package cmd

import (
	"github.com/spf13/cobra"

	"github.com/alloctrace/internal/repository"
)

var runsLimit int

// runsCmd represents the runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent export runs",
	Long:  `List recent export runs recorded in the run database, newest first.`,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	log := GetLogger()
	conf := GetConfig()

	db, err := repository.NewDatabase(&conf.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.Runs.ListRecentRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		log.Info("no export runs recorded")
		return nil
	}

	for _, run := range runs {
		log.Info("%s  %-9s  %-16s  %8d records  %6dms  %s",
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.Status, run.Strategy, run.TotalRecords, run.DurationMs, run.SourcePath)
		if run.Status.String() == "failed" && run.StatusInfo != "" {
			log.Info("    reason: %s", run.StatusInfo)
		}
	}
	return nil
}
