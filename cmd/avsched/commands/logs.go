package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/pulse/logstore"
	"github.com/teranos/avscheduler/pulse/schedule"
)

// ViewLogsCmd prints execution records, newest first
var ViewLogsCmd = &cobra.Command{
	Use:   "view-logs",
	Short: "Show execution history",
	Example: `  avsched view-logs
  avsched view-logs --job-id backup --limit 5`,
	Args: cobra.NoArgs,
	RunE: runViewLogs,
}

// CleanupLogsCmd deletes execution records for a job
var CleanupLogsCmd = &cobra.Command{
	Use:   "cleanup-logs",
	Short: "Delete execution history for a job",
	Long: fmt.Sprintf(`Delete execution history for a job.

With --before, only records that started before the given time are removed.
The time has the form %q and is interpreted as UTC.
With --all, every record for the job is removed.`, TimestampFlagLayout),
	Example: `  avsched cleanup-logs --job-id backup --before "2025-01-01 00:00:00"
  avsched cleanup-logs --job-id backup --all`,
	Args: cobra.NoArgs,
	RunE: runCleanupLogs,
}

var (
	viewLogsJobID string
	viewLogsLimit int
	viewLogsJSON  bool

	cleanupJobID  string
	cleanupBefore string
	cleanupAll    bool
)

func init() {
	ViewLogsCmd.Flags().StringVar(&viewLogsJobID, "job-id", "", "Only show this job")
	ViewLogsCmd.Flags().IntVarP(&viewLogsLimit, "limit", "n", 20, "Maximum records to show (0 for all)")
	ViewLogsCmd.Flags().BoolVarP(&viewLogsJSON, "json", "j", false, "Output records as JSON")

	CleanupLogsCmd.Flags().StringVar(&cleanupJobID, "job-id", "", "Job whose records are deleted")
	CleanupLogsCmd.Flags().StringVar(&cleanupBefore, "before", "", "Delete records that started before this UTC time")
	CleanupLogsCmd.Flags().BoolVar(&cleanupAll, "all", false, "Delete every record for the job")
	CleanupLogsCmd.MarkFlagRequired("job-id")
	CleanupLogsCmd.MarkFlagsMutuallyExclusive("before", "all")
	CleanupLogsCmd.MarkFlagsOneRequired("before", "all")
}

func runViewLogs(cmd *cobra.Command, args []string) error {
	if viewLogsLimit < 0 {
		return errors.Newf("--limit must be >= 0, got %d", viewLogsLimit)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, store, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	core := schedule.New(store, quietLogger())
	recs, err := core.GetLogs(commandContext(cmd), logstore.Filter{JobID: viewLogsJobID, Limit: viewLogsLimit})
	if err != nil {
		return err
	}

	if viewLogsJSON {
		if recs == nil {
			recs = []logstore.Record{}
		}
		return printJSON(recs)
	}
	if len(recs) == 0 {
		pterm.Info.Println("No executions recorded")
		return nil
	}

	data := pterm.TableData{{"ID", "Job", "Started", "Exit", "Duration"}}
	for _, rec := range recs {
		exit := fmt.Sprintf("%d", rec.ExitCode)
		if rec.ExitCode == logstore.ExitCodeNotStarted {
			exit = pterm.Red("not started")
		} else if !rec.Succeeded() {
			exit = pterm.Red(exit)
		}
		data = append(data, []string{
			fmt.Sprintf("%d", rec.ID),
			rec.JobID,
			formatTime(&rec.Timestamp),
			exit,
			rec.DurationValue().Round(time.Millisecond).String(),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runCleanupLogs(cmd *cobra.Command, args []string) error {
	var before time.Time
	if !cleanupAll {
		t, err := parseBefore(cleanupBefore)
		if err != nil {
			return err
		}
		before = t
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, store, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	core := schedule.New(store, quietLogger())
	removed, err := core.CleanupLogs(commandContext(cmd), cleanupJobID, before, cleanupAll)
	if err != nil {
		return err
	}

	if cleanupAll {
		pterm.Success.Printfln("Deleted %d record(s) for %s", removed, cleanupJobID)
	} else {
		pterm.Success.Printfln("Deleted %d record(s) for %s before %s UTC", removed, cleanupJobID, cleanupBefore)
	}
	return nil
}
