package cmd

import (
	"fmt"
	"io/fs"

	"github.com/Iron-Ham/workchain/internal/errors"
	"github.com/Iron-Ham/workchain/internal/taskqueue"
	"github.com/Iron-Ham/workchain/internal/tui"
	"github.com/Iron-Ham/workchain/internal/tui/styles"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [name]",
	Short: "Show finished chain runs from the ledger",
	Long: `Display the last finished run of every chain name recorded in the
ledger, or the task runs of a single chain when a name is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !cfg.Ledger.Enabled {
		fmt.Fprintln(out, "Ledger is disabled (ledger.enabled = false)")
		return nil
	}
	dir := cfg.Ledger.ResolveDir()

	if len(args) == 1 {
		rec, err := taskqueue.LoadRecord(dir, args[0])
		if errors.Is(err, fs.ErrNotExist) {
			return errors.NewNotFoundError("ledger record", args[0]).WithCause(err)
		}
		if err != nil {
			return err
		}
		printRecord(cmd, *rec)
		fmt.Fprintln(out, tui.RenderTasks(rec.Tasks, ""))
		return nil
	}

	records, err := taskqueue.ListRecords(dir)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No finished runs")
		return nil
	}
	for _, rec := range records {
		printRecord(cmd, rec)
	}
	return nil
}

func printRecord(cmd *cobra.Command, rec taskqueue.Record) {
	out := cmd.OutOrStdout()
	finished := "-"
	if rec.FinishedAt != nil {
		finished = rec.FinishedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(out, "%s %s\n", styles.Title.Render(rec.Name), rec.Outcome)
	fmt.Fprintf(out, "    Run: %s\n", rec.RunID)
	fmt.Fprintf(out, "    Finished: %s\n", finished)
	fmt.Fprintf(out, "    Tasks: %s\n", tui.Summary(rec.Tasks))
}
