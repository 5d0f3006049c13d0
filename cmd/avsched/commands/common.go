// Package commands implements the avsched subcommands.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/db"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
)

// ConfigFlag is the root --config flag; empty means discover
var ConfigFlag string

// TimestampFlagLayout is the --before format of cleanup-logs
const TimestampFlagLayout = "2006-01-02 15:04:05"

// loadConfig discovers, loads and validates the configuration.
// Per-job problems are not errors here; callers report them.
func loadConfig() (*am.Config, error) {
	cfg, err := am.LoadDefault(ConfigFlag)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// openLogStore opens and migrates the configured execution log database
func openLogStore(cfg *am.Config) (*sql.DB, *logstore.Store, error) {
	path := cfg.GetDatabasePath()
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open execution log at %s", path)
	}
	return database, logstore.NewStore(database), nil
}

// printConfigProblems warns about jobs that were rejected
func printConfigProblems(problems []*errors.ConfigError) {
	for _, problem := range problems {
		pterm.Warning.Printfln("job %q skipped: %v", problem.JobID, problem.Err)
		for _, hint := range errors.GetAllHints(problem.Err) {
			pterm.Printfln("  hint: %s", hint)
		}
	}
}

// parseBefore parses a --before value as UTC
func parseBefore(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampFlagLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, errors.WithHintf(
			errors.Newf("invalid timestamp %q", value),
			"use the form %q, interpreted as UTC", TimestampFlagLayout)
	}
	return t, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(TimestampFlagLayout)
}

func formatRecord(rec *logstore.Record) string {
	if rec == nil {
		return "never"
	}
	return fmt.Sprintf("%s (exit %d, %.2fs)", formatTime(&rec.Timestamp), rec.ExitCode, rec.Duration)
}

// commandContext is cmd's context, or Background when run outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
