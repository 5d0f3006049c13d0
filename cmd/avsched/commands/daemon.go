package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/internal/pidfile"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/pulse/logstore"
	"github.com/teranos/avscheduler/pulse/schedule"
	"github.com/teranos/avscheduler/sym"
)

const (
	stopTimeout  = 10 * time.Second
	stopPollStep = 100 * time.Millisecond
)

// StartCmd runs the scheduler in the foreground
var StartCmd = &cobra.Command{
	Use:   "start",
	Short: sym.Pulse + " Start the scheduler in the foreground",
	Long: sym.Pulse + ` Start the scheduler in the foreground.

The scheduler writes its PID file, fires jobs as their schedules come due and
records every run in the execution log. It does not fork; run it under a
supervisor (systemd, launchd, runit) to keep it in the background.

Signals:
  SIGINT, SIGTERM   stop firing, wait for running jobs, exit
  SIGHUP            reload the configuration file

The configuration file is also watched and reloaded when it changes.`,
	RunE: runStart,
}

// StopCmd asks a running scheduler to shut down
var StopCmd = &cobra.Command{
	Use:   "stop",
	Short: sym.PulseClose + " Stop the running scheduler",
	RunE:  runStop,
}

// StatusCmd reports whether the scheduler is running
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the scheduler is running",
	RunE:  runStatus,
}

// RestartCmd stops the running scheduler and starts a new one in the foreground
var RestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop the running scheduler and start it again in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runStop(cmd, args); err != nil {
			return err
		}
		return runStart(cmd, args)
	},
}

// ReloadCmd asks the running scheduler to reread its configuration
var ReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the running scheduler reload its configuration",
	RunE:  runReload,
}

var statusJSON bool

func init() {
	StatusCmd.Flags().BoolVarP(&statusJSON, "json", "j", false, "Output status as JSON")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pidPath := cfg.GetPIDFile()
	pid := os.Getpid()
	if err := pidfile.Write(pidPath, pid); err != nil {
		return err
	}
	defer func() {
		if err := pidfile.Remove(pidPath, pid); err != nil {
			logger.Logger.Warnw("Failed to remove pid file", logger.FieldPath, pidPath, logger.FieldError, err)
		}
	}()

	database, store, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	core := schedule.New(store, logger.Logger,
		schedule.WithConfigTimings(cfg),
		schedule.WithTextLog(logstore.NewTextLog(cfg.Settings.LogFile)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	problems, err := core.Start(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}
	printStartupBanner(cfg, pid, len(cfg.Jobs)-len(problems))
	printConfigProblems(problems)

	reload := func(next *am.Config) error {
		printConfigProblems(core.Reload(next))
		return nil
	}

	watcher, err := am.NewConfigWatcher(cfg.Path(), logger.Logger)
	if err != nil {
		// SIGHUP still works
		logger.Logger.Warnw("Config watcher unavailable", logger.FieldError, err)
	} else {
		watcher.OnReload(reload)
		am.SetGlobalWatcher(watcher)
		watcher.Start()
		defer watcher.Stop()
	}

	waitForShutdown(cfg.Path(), reload)

	pterm.Info.Printfln("%s Shutting down, waiting up to %s for running jobs...", sym.PulseClose, cfg.ShutdownGrace())
	if err := core.Shutdown(context.Background()); err != nil {
		pterm.Warning.Println(err.Error())
		return nil
	}
	pterm.Success.Printfln("%s Scheduler stopped", sym.PulseClose)
	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, reloading on SIGHUP
func waitForShutdown(configPath string, reload am.ReloadCallback) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			return
		}
		next, err := am.Load(configPath)
		if err != nil {
			logger.Logger.Errorw("Reload failed, keeping current jobs", logger.FieldError, err)
			continue
		}
		logger.Logger.Infow("Reloading configuration (SIGHUP)", logger.FieldPath, configPath)
		reload(next)
	}
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err := pidfile.Signal(cfg.GetPIDFile(), syscall.SIGTERM)
	if err != nil {
		if errors.Is(err, pidfile.ErrNotRunning) {
			pterm.Info.Println("Scheduler is not running")
			return nil
		}
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Waiting for scheduler (pid %d) to exit...", pid))
	if !pidfile.WaitExit(pid, stopTimeout, stopPollStep) {
		spinner.Fail(fmt.Sprintf("Scheduler (pid %d) still running after %s", pid, stopTimeout))
		return errors.WithHint(
			errors.Newf("scheduler pid %d did not exit within %s", pid, stopTimeout),
			"it may still be waiting for running jobs (settings.shutdown_grace_seconds)")
	}
	spinner.Success(fmt.Sprintf("Scheduler (pid %d) stopped", pid))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err := pidfile.Running(cfg.GetPIDFile())
	if err != nil {
		if !errors.Is(err, pidfile.ErrNotRunning) {
			return err
		}
		if statusJSON {
			return printJSON(map[string]interface{}{"running": false})
		}
		pterm.Info.Println("Scheduler is not running")
		return nil
	}

	stats, err := pidfile.Stats(pid)
	if err != nil {
		return err
	}

	if statusJSON {
		return printJSON(map[string]interface{}{"running": true, "process": stats})
	}

	pterm.Success.Printfln("Scheduler is running (pid %d)", pid)
	return pterm.DefaultTable.WithData(pterm.TableData{
		{"Started", stats.StartedAt.Format(TimestampFlagLayout)},
		{"Uptime", stats.Uptime},
		{"RSS", fmt.Sprintf("%.1f MB", stats.RSSMB)},
		{"CPU", fmt.Sprintf("%.1f%%", stats.CPUPercent)},
		{"Running jobs", fmt.Sprintf("%d", stats.NumChildren)},
		{"Host memory", fmt.Sprintf("%.1f%% of %.1f GB", stats.MemoryPercent, stats.MemoryTotalGB)},
		{"PID file", cfg.GetPIDFile()},
	}).Render()
}

func runReload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if problems := cfg.ValidateJobs(); len(problems) > 0 {
		printConfigProblems(problems)
	}

	pid, err := pidfile.Signal(cfg.GetPIDFile(), syscall.SIGHUP)
	if err != nil {
		return err
	}
	pterm.Success.Printfln("Reload requested (pid %d)", pid)
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to format JSON")
	}
	fmt.Println(string(data))
	return nil
}
