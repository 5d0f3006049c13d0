package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/avscheduler/am"
	"github.com/teranos/avscheduler/errors"
	"github.com/teranos/avscheduler/logger"
	"github.com/teranos/avscheduler/server"
	"github.com/teranos/avscheduler/sym"
)

// ServeCmd runs the read-only status server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: sym.Server + " Serve job status over HTTP",
	Long: sym.Server + ` Serve job status over HTTP on web_server.host:web_server.port.

Endpoints:
  GET /health           liveness and build info
  GET /api/jobs         configured jobs with next fire and last run
  GET /api/logs         execution history (?job_id=&limit=)
  GET /ws/executions    websocket stream of new execution records

The server reads the same configuration and execution log as the scheduler
but does not run jobs. It can run whether or not the scheduler is running.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override web_server.port")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.WebServer.Port = servePort
	}

	database, store, err := openLogStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(cfg, store, logger.Logger)

	watcher, err := am.NewConfigWatcher(cfg.Path(), logger.Logger)
	if err != nil {
		logger.Logger.Warnw("Config watcher unavailable", logger.FieldError, err)
	} else {
		watcher.OnReload(func(next *am.Config) error {
			srv.Reload(next)
			return nil
		})
		watcher.Start()
		defer watcher.Stop()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()
	pterm.Info.Printfln("%s Status server on http://%s", sym.Server, srv.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		srv.Stop(context.Background())
		if err != nil {
			return errors.Wrap(err, "status server stopped")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("Shutting down status server...")
		ctx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			return err
		}
		pterm.Success.Println("Server stopped cleanly")
		return nil
	}
}
