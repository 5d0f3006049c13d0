package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/cmd/avsched/commands"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
)

var jsonLog bool

var rootCmd = &cobra.Command{
	Use:   "avsched",
	Short: "avscheduler - cron and interval job scheduler with condition gating",
	Long: `avscheduler - run commands on cron or interval schedules.

Jobs are defined in a TOML file and run through a configured interpreter.
A job may carry a condition on other jobs' history (e.g. only run the report
when the backup succeeded). Every run is recorded in a SQLite execution log.

Examples:
  avsched start                         # Run the scheduler in the foreground
  avsched list-jobs                     # Show jobs, next fire and last run
  avsched run-job backup                # Run a job now
  avsched view-logs --job-id backup     # Show its history
  avsched serve                         # Serve status over HTTP`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(jsonLog, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigFlag, "config", "c", "", "Path to avscheduler.toml (default: discovered)")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "Write logs as JSON")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (-v debug, -vv job output)")

	// Scheduler process
	rootCmd.AddCommand(commands.StartCmd)
	rootCmd.AddCommand(commands.StopCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.RestartCmd)
	rootCmd.AddCommand(commands.ReloadCmd)

	// Jobs
	rootCmd.AddCommand(commands.ListJobsCmd)
	rootCmd.AddCommand(commands.RunJobCmd)
	rootCmd.AddCommand(commands.AddJobCmd)
	rootCmd.AddCommand(commands.EditJobCmd)
	rootCmd.AddCommand(commands.DeleteJobCmd)

	// History
	rootCmd.AddCommand(commands.ViewLogsCmd)
	rootCmd.AddCommand(commands.CleanupLogsCmd)

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}
