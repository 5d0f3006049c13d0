package am

import (
	"sort"
	"time"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/pulse/trigger"
)

// Config represents the avscheduler configuration file.
//
// Settings and WebServer are scalar sections and honour AVSCHED_* environment
// overrides. Interpreters and Jobs are keyed by case-sensitive names.
type Config struct {
	Settings     SettingsConfig       `toml:"settings" mapstructure:"settings" json:"settings" yaml:"settings"`
	Interpreters map[string]string    `toml:"interpreters" mapstructure:"-" json:"interpreters" yaml:"interpreters"`
	Jobs         map[string]JobConfig `toml:"jobs" mapstructure:"-" json:"jobs" yaml:"jobs"`
	WebServer    WebServerConfig      `toml:"web_server" mapstructure:"web_server" json:"web_server" yaml:"web_server"`

	// path is the file this config was loaded from; empty for in-memory configs
	path string
}

// SettingsConfig configures the scheduler process
type SettingsConfig struct {
	DBPath               string `toml:"db_path" mapstructure:"db_path" json:"db_path" yaml:"db_path"`
	PIDFile              string `toml:"pid_file" mapstructure:"pid_file" json:"pid_file" yaml:"pid_file"`
	LogFile              string `toml:"log_file" mapstructure:"log_file" json:"log_file" yaml:"log_file"`                                     // text mirror of every run, empty disables
	TickIntervalMS       int    `toml:"tick_interval_ms" mapstructure:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"` // dispatch loop period
	ShutdownGraceSeconds int    `toml:"shutdown_grace_seconds" mapstructure:"shutdown_grace_seconds" json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`
	RequiresVersion      string `toml:"requires_version" mapstructure:"requires_version" json:"requires_version,omitempty" yaml:"requires_version,omitempty"` // semver constraint on the binary
}

// WebServerConfig configures the status server (avsched serve)
type WebServerConfig struct {
	Host      string  `toml:"host" mapstructure:"host" json:"host" yaml:"host"`
	Port      int     `toml:"port" mapstructure:"port" json:"port" yaml:"port"`
	RateLimit float64 `toml:"rate_limit" mapstructure:"rate_limit" json:"rate_limit" yaml:"rate_limit"` // requests per second across all clients
	RateBurst int     `toml:"rate_burst" mapstructure:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
}

// JobConfig is one [jobs.<id>] table
type JobConfig struct {
	Type            string `toml:"type" json:"type" yaml:"type"` // key into [interpreters]
	Name            string `toml:"name,omitempty" json:"name,omitempty" yaml:"name,omitempty"`
	ScheduleType    string `toml:"schedule_type,omitempty" json:"schedule_type,omitempty" yaml:"schedule_type,omitempty"`
	Schedule        string `toml:"schedule,omitempty" json:"schedule,omitempty" yaml:"schedule,omitempty"`
	IntervalSeconds int    `toml:"interval_seconds,omitempty" json:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
	Command         string `toml:"command" json:"command" yaml:"command"`
	Condition       string `toml:"condition,omitempty" json:"condition,omitempty" yaml:"condition,omitempty"`
	EnvFile         string `toml:"env_file,omitempty" json:"env_file,omitempty" yaml:"env_file,omitempty"`
}

// Defaults that are not zero
const (
	DefaultFileName             = "avscheduler.toml"
	DefaultDBPath               = "jobs.db"
	DefaultLogFile              = "avscheduler.log"
	DefaultPIDFile              = "/tmp/avscheduler.pid"
	DefaultTickIntervalMS       = 1000
	DefaultShutdownGraceSeconds = 30
	DefaultWebHost              = "127.0.0.1"
	DefaultWebPort              = 5000
	DefaultRateLimit            = 20.0
	DefaultRateBurst            = 40
)

// Path returns the file the config was loaded from
func (c *Config) Path() string {
	return c.path
}

// Spec returns the job's schedule as a trigger spec
func (j JobConfig) Spec() (trigger.Spec, error) {
	return trigger.ParseSpec(j.ScheduleType, j.Schedule, j.IntervalSeconds)
}

// Compile parses and compiles the job's schedule
func (j JobConfig) Compile() (trigger.Schedule, error) {
	spec, err := j.Spec()
	if err != nil {
		return nil, err
	}
	return trigger.Compile(spec)
}

// DisplayName returns Name, falling back to the job ID
func (j JobConfig) DisplayName(id string) string {
	if j.Name != "" {
		return j.Name
	}
	return id
}

// Interpreter resolves a job type to its configured executable.
func (c *Config) Interpreter(jobType string) (string, error) {
	if jobType == "" {
		return "", errors.Wrap(errors.ErrInterpreterNotConfigured, "job has no type")
	}
	exe, ok := c.Interpreters[jobType]
	if !ok || exe == "" {
		return "", errors.WithHintf(
			errors.Wrapf(errors.ErrInterpreterNotConfigured, "no interpreter for type %q", jobType),
			"add %s = \"<executable>\" under [interpreters]", jobType)
	}
	return exe, nil
}

// JobIDs returns the configured job IDs, sorted
func (c *Config) JobIDs() []string {
	ids := make([]string, 0, len(c.Jobs))
	for id := range c.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TickInterval returns the dispatch loop period
func (c *Config) TickInterval() time.Duration {
	if c.Settings.TickIntervalMS <= 0 {
		return DefaultTickIntervalMS * time.Millisecond
	}
	return time.Duration(c.Settings.TickIntervalMS) * time.Millisecond
}

// ShutdownGrace returns how long shutdown waits for in-flight runs
func (c *Config) ShutdownGrace() time.Duration {
	if c.Settings.ShutdownGraceSeconds <= 0 {
		return DefaultShutdownGraceSeconds * time.Second
	}
	return time.Duration(c.Settings.ShutdownGraceSeconds) * time.Second
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Settings.DBPath == "" {
		return DefaultDBPath
	}
	return c.Settings.DBPath
}

// GetPIDFile returns the configured PID file path
func (c *Config) GetPIDFile() string {
	if c.Settings.PIDFile == "" {
		return DefaultPIDFile
	}
	return c.Settings.PIDFile
}
