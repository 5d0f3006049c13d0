package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/db"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/pulse/logstore"
)

const testConfigTOML = `
[settings]
db_path = "jobs.db"
log_file = "avscheduler.log"

[interpreters]
sh = "/bin/sh"

[jobs.hello]
type = "sh"
schedule_type = "interval"
interval_seconds = 60
command = "exit 0"

[jobs.fail]
type = "sh"
schedule = "0 3 * * *"
command = "exit 3"

[jobs.gated]
type = "sh"
schedule = "0 4 * * *"
command = "exit 0"
condition = "fail.last_run_successful"
`

// useConfig writes a config file and points ConfigFlag at it
func useConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), am.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	prev := ConfigFlag
	ConfigFlag = path
	t.Cleanup(func() { ConfigFlag = prev })
	return path
}

func openTestStore(t *testing.T, configPath string) *logstore.Store {
	t.Helper()
	conn, err := db.OpenWithMigrations(filepath.Join(filepath.Dir(configPath), "jobs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return logstore.NewStore(conn)
}

func newJobFlagsCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addJobFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestParseBefore(t *testing.T) {
	got, err := parseBefore("2025-01-31 23:59:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC), got)

	_, err = parseBefore("2025-01-31")
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestJobFromFlags(t *testing.T) {
	job := jobFromFlags(newJobFlagsCmd(t, "--type", "sh", "--interval", "30", "--command", "echo hi"))
	assert.Equal(t, "interval", job.ScheduleType, "interval alone implies schedule_type")
	assert.Equal(t, 30, job.IntervalSeconds)

	job = jobFromFlags(newJobFlagsCmd(t, "--type", "sh", "--schedule", "*/5 * * * *", "--command", "true"))
	assert.Empty(t, job.ScheduleType)
	assert.Equal(t, "*/5 * * * *", job.Schedule)
}

func TestPatchFromFlags(t *testing.T) {
	patch := patchFromFlags(newJobFlagsCmd(t))
	assert.True(t, patch.Empty())

	patch = patchFromFlags(newJobFlagsCmd(t, "--condition", "", "--name", "Nightly"))
	require.NotNil(t, patch.Condition)
	assert.Equal(t, "", *patch.Condition, "explicit empty value clears the field")
	require.NotNil(t, patch.Name)
	assert.Nil(t, patch.Command)

	patch = patchFromFlags(newJobFlagsCmd(t, "--interval", "120"))
	require.NotNil(t, patch.IntervalSeconds)
	require.NotNil(t, patch.ScheduleType)
	assert.Equal(t, "interval", *patch.ScheduleType)
}

func TestAddEditDeleteJob(t *testing.T) {
	path := useConfig(t, testConfigTOML)

	add := newJobFlagsCmd(t, "--type", "sh", "--interval", "90", "--command", "echo nightly", "--name", "Nightly")
	require.NoError(t, runAddJob(add, []string{"nightly"}))

	cfg, err := am.Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Jobs, "nightly")
	assert.Equal(t, 90, cfg.Jobs["nightly"].IntervalSeconds)
	assert.Equal(t, "Nightly", cfg.Jobs["nightly"].Name)

	err = runAddJob(add, []string{"nightly"})
	require.Error(t, err, "duplicate id")

	edit := newJobFlagsCmd(t, "--schedule-type", "cron", "--schedule", "30 1 * * *")
	require.NoError(t, runEditJob(edit, []string{"nightly"}))
	cfg, err = am.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "30 1 * * *", cfg.Jobs["nightly"].Schedule)

	err = runEditJob(newJobFlagsCmd(t), []string{"nightly"})
	require.Error(t, err, "empty patch")

	require.NoError(t, runDeleteJob(DeleteJobCmd, []string{"nightly"}))
	cfg, err = am.Load(path)
	require.NoError(t, err)
	assert.NotContains(t, cfg.Jobs, "nightly")
	assert.Contains(t, cfg.Jobs, "hello")

	err = runDeleteJob(DeleteJobCmd, []string{"nightly"})
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRunJob(t *testing.T) {
	path := useConfig(t, testConfigTOML)

	require.NoError(t, runRunJob(RunJobCmd, []string{"hello"}))

	err := runRunJob(RunJobCmd, []string{"fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")

	err = runRunJob(RunJobCmd, []string{"gated"})
	assert.True(t, errors.Is(err, errors.ErrConditionNotMet))

	err = runRunJob(RunJobCmd, []string{"ghost"})
	assert.True(t, errors.IsNotFoundError(err))

	store := openTestStore(t, path)
	recs, err := store.List(context.Background(), logstore.Filter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "fail", recs[0].JobID)
	assert.Equal(t, 3, recs[0].ExitCode)
	assert.Equal(t, "hello", recs[1].JobID)

	assert.FileExists(t, filepath.Join(filepath.Dir(path), "avscheduler.log"))
}

func TestCleanupLogs(t *testing.T) {
	path := useConfig(t, testConfigTOML)
	store := openTestStore(t, path)
	ctx := context.Background()

	old := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{old, old.Add(24 * time.Hour), old.Add(72 * time.Hour)} {
		_, err := store.Append(ctx, logstore.Record{JobID: "hello", Timestamp: ts})
		require.NoError(t, err)
	}
	_, err := store.Append(ctx, logstore.Record{JobID: "fail", ExitCode: 3, Timestamp: old})
	require.NoError(t, err)

	t.Cleanup(func() { cleanupJobID, cleanupBefore, cleanupAll = "", "", false })

	cleanupJobID, cleanupBefore = "hello", "2024-06-02 12:00:00"
	require.NoError(t, runCleanupLogs(CleanupLogsCmd, nil))

	recs, err := store.List(ctx, logstore.Filter{JobID: "hello"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, old.Add(72*time.Hour), recs[0].Timestamp)

	cleanupBefore, cleanupAll = "", true
	require.NoError(t, runCleanupLogs(CleanupLogsCmd, nil))
	recs, err = store.List(ctx, logstore.Filter{JobID: "hello"})
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = store.List(ctx, logstore.Filter{JobID: "fail"})
	require.NoError(t, err)
	assert.Len(t, recs, 1, "other jobs are untouched")

	cleanupAll, cleanupBefore = false, "yesterday"
	assert.Error(t, runCleanupLogs(CleanupLogsCmd, nil))
}

func TestWriteConfig(t *testing.T) {
	path := useConfig(t, testConfigTOML)
	cfg, err := am.Load(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, cfg, "json"))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "jobs")

	buf.Reset()
	require.NoError(t, writeConfig(&buf, cfg, "yaml"))
	var asYAML map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &asYAML))
	assert.Contains(t, asYAML, "interpreters")

	buf.Reset()
	require.NoError(t, writeConfig(&buf, cfg, "toml"))
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "interpreters")

	assert.Error(t, writeConfig(&buf, cfg, "xml"))
}

func TestConfigValidate(t *testing.T) {
	useConfig(t, testConfigTOML)
	require.NoError(t, runConfigValidate(configValidateCmd, nil))

	useConfig(t, testConfigTOML+`
[jobs.broken]
type = "ruby"
schedule = "* * *"
command = "true"
`)
	err := runConfigValidate(configValidateCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 4 jobs are invalid")
}
