package am

import (
	"strings"

	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/pulse/condition"
	"github.com/teranos/avscheduler/version"
)

// Validate checks the process-level settings. Per-job problems are reported
// by ValidateJobs so one bad job never blocks the rest.
func (c *Config) Validate() error {
	if c.Settings.TickIntervalMS < 0 {
		return errors.Newf("settings.tick_interval_ms must be >= 0, got %d", c.Settings.TickIntervalMS)
	}
	if c.Settings.ShutdownGraceSeconds < 0 {
		return errors.Newf("settings.shutdown_grace_seconds must be >= 0, got %d", c.Settings.ShutdownGraceSeconds)
	}

	if c.WebServer.Port <= 0 || c.WebServer.Port > 65535 {
		return errors.Newf("web_server.port must be in 1-65535, got %d", c.WebServer.Port)
	}
	if c.WebServer.RateLimit < 0 {
		return errors.Newf("web_server.rate_limit must be >= 0, got %f", c.WebServer.RateLimit)
	}
	if c.WebServer.RateBurst < 0 {
		return errors.Newf("web_server.rate_burst must be >= 0, got %d", c.WebServer.RateBurst)
	}

	if err := version.Satisfies(version.Get().Version, c.Settings.RequiresVersion); err != nil {
		return errors.Wrap(err, "settings.requires_version")
	}

	return nil
}

// ValidateJob checks a single job definition, including that its type
// resolves to an interpreter.
func (c *Config) ValidateJob(id string) error {
	job, ok := c.Jobs[id]
	if !ok {
		return errors.NewJobNotFoundError(id)
	}
	if strings.TrimSpace(id) == "" {
		return errors.Wrap(errors.ErrConfig, "job id is empty")
	}
	if strings.TrimSpace(job.Command) == "" {
		return errors.Wrap(errors.ErrConfig, "command is empty")
	}
	if _, err := c.Interpreter(job.Type); err != nil {
		return err
	}
	if _, err := job.Compile(); err != nil {
		return err
	}
	if _, err := condition.Parse(job.Condition); err != nil {
		return errors.Mark(err, errors.ErrConfig)
	}
	return nil
}

// ValidateJobs checks every job and returns one ConfigError per rejected job,
// sorted by job ID.
func (c *Config) ValidateJobs() []*errors.ConfigError {
	var problems []*errors.ConfigError
	for _, id := range c.JobIDs() {
		if err := c.ValidateJob(id); err != nil {
			problems = append(problems, errors.NewConfigError(id, err))
		}
	}
	return problems
}
