package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
	"github.com/teranos/avscheduler/pulse/schedule"
)

// ListJobsCmd shows every configured job with its next fire and last run
var ListJobsCmd = &cobra.Command{
	Use:     "list-jobs",
	Aliases: []string{"ls"},
	Short:   "List configured jobs",
	RunE:    runListJobs,
}

// RunJobCmd runs one job now through the same path as a scheduled fire
var RunJobCmd = &cobra.Command{
	Use:   "run-job <job-id>",
	Short: "Run a job immediately and record the result",
	Long: `Run a job immediately and record the result in the execution log.

The job's condition is still checked: a job whose condition does not hold is
not run. The command waits for the job to finish and exits non-zero if it
failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRunJob,
}

// AddJobCmd appends a job to the configuration file
var AddJobCmd = &cobra.Command{
	Use:   "add-job <job-id>",
	Short: "Add a job to the configuration file",
	Example: `  avsched add-job backup --type bash --interval 3600 --command "tar czf /backups/home.tgz ~"
  avsched add-job report --type python --schedule "0 9 * * 1-5" \
      --command report.py --condition "backup.last_run_successful"`,
	Args: cobra.ExactArgs(1),
	RunE: runAddJob,
}

// EditJobCmd changes fields of an existing job
var EditJobCmd = &cobra.Command{
	Use:   "edit-job <job-id>",
	Short: "Change fields of a job in the configuration file",
	Long: `Change fields of a job in the configuration file. Only the flags given
are changed; pass an empty value (--condition "") to clear an optional field.`,
	Args: cobra.ExactArgs(1),
	RunE: runEditJob,
}

// DeleteJobCmd removes a job from the configuration file
var DeleteJobCmd = &cobra.Command{
	Use:   "delete-job <job-id>",
	Short: "Remove a job from the configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteJob,
}

var (
	listJobsJSON bool
	runJobJSON   bool
)

func init() {
	ListJobsCmd.Flags().BoolVarP(&listJobsJSON, "json", "j", false, "Output jobs as JSON")
	RunJobCmd.Flags().BoolVarP(&runJobJSON, "json", "j", false, "Output the execution record as JSON")

	addJobFlags(AddJobCmd)
	addJobFlags(EditJobCmd)
	AddJobCmd.MarkFlagRequired("type")
	AddJobCmd.MarkFlagRequired("command")
}

// addJobFlags registers the job field flags shared by add-job and edit-job
func addJobFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("type", "", "Interpreter type (a key of [interpreters])")
	f.String("name", "", "Display name")
	f.String("schedule-type", "", `"cron" or "interval" (inferred when omitted)`)
	f.String("schedule", "", "Cron expression (minute hour day-of-month month day-of-week)")
	f.Int("interval", 0, "Interval in seconds")
	f.String("command", "", "Command passed to the interpreter")
	f.String("condition", "", `Gate expression, e.g. "backup.last_run_successful"`)
	f.String("env-file", "", "KEY=VALUE file added to the job environment")
}

// quietLogger drops the core's info-level lifecycle lines in one-shot commands
func quietLogger() *zap.SugaredLogger {
	return logger.Logger.Desugar().WithOptions(zap.IncreaseLevel(zapcore.WarnLevel)).Sugar()
}

func runListJobs(cmd *cobra.Command, args []string) error {
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
	core.Reload(cfg)

	jobs, err := core.ListJobs(commandContext(cmd))
	if err != nil {
		return err
	}

	if listJobsJSON {
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		pterm.Info.Printfln("No jobs configured in %s", cfg.Path())
		return nil
	}

	data := pterm.TableData{{"ID", "Name", "Schedule", "Condition", "Next fire", "Last run"}}
	for _, job := range jobs {
		if job.Error != "" {
			data = append(data, []string{job.ID, job.Name, pterm.Red("invalid"), job.Error, "-", "-"})
			continue
		}
		condition := job.Condition
		if condition == "" {
			condition = "-"
		}
		last := formatRecord(job.LastRun)
		if job.LastRun != nil && !job.LastRun.Succeeded() {
			last = pterm.Red(last)
		}
		data = append(data, []string{job.ID, job.Name, job.Schedule, condition, formatTime(job.NextFire), last})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runRunJob(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, store, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	core := schedule.New(store, logger.Logger,
		schedule.WithTextLog(logstore.NewTextLog(cfg.Settings.LogFile)),
	)
	core.Reload(cfg)

	rec, runErr := core.RunNow(commandContext(cmd), jobID)
	if rec.ID == 0 {
		// Nothing ran
		return runErr
	}

	if runJobJSON {
		if err := printJSON(rec); err != nil {
			return err
		}
	} else if rec.Succeeded() {
		pterm.Success.Printfln("%s finished in %.2fs", jobID, rec.Duration)
	} else {
		pterm.Error.Printfln("%s exited with code %d after %.2fs", jobID, rec.ExitCode, rec.Duration)
	}

	if runErr != nil {
		return runErr
	}
	if !rec.Succeeded() {
		return errors.Newf("job %q exited with code %d", jobID, rec.ExitCode)
	}
	return nil
}

// jobFromFlags builds a JobConfig from add-job flags
func jobFromFlags(cmd *cobra.Command) am.JobConfig {
	f := cmd.Flags()
	job := am.JobConfig{}
	job.Type, _ = f.GetString("type")
	job.Name, _ = f.GetString("name")
	job.ScheduleType, _ = f.GetString("schedule-type")
	job.Schedule, _ = f.GetString("schedule")
	job.IntervalSeconds, _ = f.GetInt("interval")
	job.Command, _ = f.GetString("command")
	job.Condition, _ = f.GetString("condition")
	job.EnvFile, _ = f.GetString("env-file")

	if job.ScheduleType == "" && job.IntervalSeconds > 0 && job.Schedule == "" {
		job.ScheduleType = "interval"
	}
	return job
}

// patchFromFlags builds a JobPatch from the edit-job flags that were set
func patchFromFlags(cmd *cobra.Command) am.JobPatch {
	f := cmd.Flags()
	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v, _ := f.GetString(name)
		return &v
	}

	patch := am.JobPatch{
		Type:         str("type"),
		Name:         str("name"),
		ScheduleType: str("schedule-type"),
		Schedule:     str("schedule"),
		Command:      str("command"),
		Condition:    str("condition"),
		EnvFile:      str("env-file"),
	}
	if f.Changed("interval") {
		v, _ := f.GetInt("interval")
		patch.IntervalSeconds = &v
		if patch.ScheduleType == nil && patch.Schedule == nil {
			interval := "interval"
			patch.ScheduleType = &interval
		}
	}
	return patch
}

func configPathForWrite() (string, error) {
	return am.Discover(ConfigFlag)
}

func runAddJob(cmd *cobra.Command, args []string) error {
	path, err := configPathForWrite()
	if err != nil {
		return err
	}

	job := jobFromFlags(cmd)
	if err := am.AddJob(path, args[0], job); err != nil {
		return err
	}
	spec, _ := job.Spec()
	pterm.Success.Printfln("Added job %q (%s) to %s", args[0], spec, path)
	return nil
}

func runEditJob(cmd *cobra.Command, args []string) error {
	patch := patchFromFlags(cmd)
	if patch.Empty() {
		return errors.WithHint(errors.New("nothing to change"), "pass at least one field flag, see --help")
	}

	path, err := configPathForWrite()
	if err != nil {
		return err
	}

	job, err := am.EditJob(path, args[0], patch)
	if err != nil {
		return err
	}
	spec, _ := job.Spec()
	pterm.Success.Printfln("Updated job %q (%s) in %s", args[0], spec, path)
	return nil
}

func runDeleteJob(cmd *cobra.Command, args []string) error {
	path, err := configPathForWrite()
	if err != nil {
		return err
	}
	if err := am.DeleteJob(path, args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Deleted job %q from %s", args[0], path)
	fmt.Println("Its execution history is kept; remove it with: avsched cleanup-logs --job-id", args[0], "--all")
	return nil
}
