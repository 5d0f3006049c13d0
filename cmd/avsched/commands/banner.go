package commands

import (
	"fmt"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/sym"
	"github.com/teranos/avscheduler/version"
)

// printStartupBanner prints the foreground startup summary
func printStartupBanner(cfg *am.Config, pid, activeJobs int) {
	// ANSI escape codes
	cyan := "\033[36m"
	green := "\033[32m"
	blue := "\033[34m"
	bold := "\033[1m"
	reset := "\033[0m"

	versionInfo := version.Get()

	fmt.Printf("\n%s%s%s avscheduler %s(commit %s)\n\n", cyan, bold, sym.PulseOpen, reset, versionInfo.Short())

	fmt.Printf("%s%s┌─ Scheduler ─────────────────────────────────────────┐%s\n", green, bold, reset)
	fmt.Printf("%s│%s Config:    %s\n", green, reset, cfg.Path())
	fmt.Printf("%s│%s Database:  %s\n", green, reset, cfg.GetDatabasePath())
	if cfg.Settings.LogFile != "" {
		fmt.Printf("%s│%s Text log:  %s\n", green, reset, cfg.Settings.LogFile)
	}
	fmt.Printf("%s│%s PID:       %d (%s)\n", green, reset, pid, cfg.GetPIDFile())
	fmt.Printf("%s│%s Jobs:      %d of %d active\n", green, reset, activeJobs, len(cfg.Jobs))
	fmt.Printf("%s│%s Tick:      %s, grace %s\n", green, reset, cfg.TickInterval(), cfg.ShutdownGrace())
	fmt.Printf("%s└─────────────────────────────────────────────────────┘%s\n", green, reset)

	fmt.Printf("\n%s%s Press Ctrl+C to stop, send SIGHUP to reload%s\n\n", blue, sym.Pulse, reset)
}
