package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/condition"
)

// JobPatch carries the fields edit-job changes. Nil fields are left alone;
// a pointer to "" clears an optional field.
type JobPatch struct {
	Type            *string
	Name            *string
	ScheduleType    *string
	Schedule        *string
	IntervalSeconds *int
	Command         *string
	Condition       *string
	EnvFile         *string
}

// Empty reports whether the patch changes nothing
func (p JobPatch) Empty() bool {
	return p.Type == nil && p.Name == nil && p.ScheduleType == nil && p.Schedule == nil &&
		p.IntervalSeconds == nil && p.Command == nil && p.Condition == nil && p.EnvFile == nil
}

// Apply returns job with the patch applied
func (p JobPatch) Apply(job JobConfig) JobConfig {
	if p.Type != nil {
		job.Type = *p.Type
	}
	if p.Name != nil {
		job.Name = *p.Name
	}
	if p.ScheduleType != nil {
		job.ScheduleType = *p.ScheduleType
	}
	if p.Schedule != nil {
		job.Schedule = *p.Schedule
	}
	if p.IntervalSeconds != nil {
		job.IntervalSeconds = *p.IntervalSeconds
	}
	if p.Command != nil {
		job.Command = *p.Command
	}
	if p.Condition != nil {
		job.Condition = *p.Condition
	}
	if p.EnvFile != nil {
		job.EnvFile = *p.EnvFile
	}
	return job
}

// AddJob writes a new [jobs.<id>] table to the config file at path.
func AddJob(path, id string, job JobConfig) error {
	if strings.TrimSpace(id) == "" {
		return errors.Wrap(errors.ErrConfig, "job id is empty")
	}
	if err := checkDefinition(id, job); err != nil {
		return err
	}

	raw, err := loadRaw(path)
	if err != nil {
		return err
	}
	jobs := jobsTable(raw)
	if _, exists := jobs[id]; exists {
		return errors.WithHint(
			errors.Newf("job %q already exists", id),
			"use edit-job to change it")
	}

	jobs[id] = jobToMap(job)
	raw["jobs"] = jobs
	return saveRaw(path, raw)
}

// EditJob applies patch to an existing job and rewrites the config file.
// Returns the job as written.
func EditJob(path, id string, patch JobPatch) (JobConfig, error) {
	raw, err := loadRaw(path)
	if err != nil {
		return JobConfig{}, err
	}
	jobs := jobsTable(raw)
	existing, ok := jobs[id].(map[string]interface{})
	if !ok {
		return JobConfig{}, errors.NewJobNotFoundError(id)
	}

	updated := patch.Apply(jobFromMap(existing))
	if err := checkDefinition(id, updated); err != nil {
		return JobConfig{}, err
	}

	jobs[id] = jobToMap(updated)
	raw["jobs"] = jobs
	if err := saveRaw(path, raw); err != nil {
		return JobConfig{}, err
	}
	return updated, nil
}

// DeleteJob removes [jobs.<id>] from the config file.
func DeleteJob(path, id string) error {
	raw, err := loadRaw(path)
	if err != nil {
		return err
	}
	jobs := jobsTable(raw)
	if _, ok := jobs[id]; !ok {
		return errors.NewJobNotFoundError(id)
	}

	delete(jobs, id)
	raw["jobs"] = jobs
	return saveRaw(path, raw)
}

// checkDefinition validates what can be checked without the interpreter table.
// An unknown type is accepted here and rejected when the registry is built.
func checkDefinition(id string, job JobConfig) error {
	if strings.TrimSpace(job.Command) == "" {
		return errors.NewConfigError(id, errors.Wrap(errors.ErrConfig, "command is empty"))
	}
	if _, err := job.Compile(); err != nil {
		return errors.NewConfigError(id, err)
	}
	if _, err := condition.Parse(job.Condition); err != nil {
		return errors.NewConfigError(id, errors.Mark(err, errors.ErrConfig))
	}
	return nil
}

func loadRaw(path string) (map[string]interface{}, error) {
	raw := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return raw, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrConfig), "failed to parse config file %s", path)
	}
	return raw, nil
}

func jobsTable(raw map[string]interface{}) map[string]interface{} {
	if jobs, ok := raw["jobs"].(map[string]interface{}); ok {
		return jobs
	}
	return make(map[string]interface{})
}

func jobToMap(job JobConfig) map[string]interface{} {
	m := map[string]interface{}{
		"type":    job.Type,
		"command": job.Command,
	}
	setIf := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	setIf("name", job.Name)
	setIf("schedule_type", job.ScheduleType)
	setIf("schedule", job.Schedule)
	setIf("condition", job.Condition)
	setIf("env_file", job.EnvFile)
	if job.IntervalSeconds > 0 {
		m["interval_seconds"] = job.IntervalSeconds
	}
	return m
}

func jobFromMap(m map[string]interface{}) JobConfig {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	job := JobConfig{
		Type:         str("type"),
		Name:         str("name"),
		ScheduleType: str("schedule_type"),
		Schedule:     str("schedule"),
		Command:      str("command"),
		Condition:    str("condition"),
		EnvFile:      str("env_file"),
	}
	switch n := m["interval_seconds"].(type) {
	case int64:
		job.IntervalSeconds = int(n)
	case float64:
		job.IntervalSeconds = int(n)
	}
	return job
}

// saveRaw writes the config with rotating backups
func saveRaw(path string, raw map[string]interface{}) error {
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPerms); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	// Mark this as our own write to prevent reload loops
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// createBackup rotates backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back1 := configPath + ".back1"
	back2 := configPath + ".back2"
	back3 := configPath + ".back3"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", logger.FieldPath, back3, logger.FieldError, err)
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, 0644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
