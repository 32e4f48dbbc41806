package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"docflow/internal/config"
	"docflow/internal/daemon"
	"docflow/internal/logging"
	"docflow/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the docflow daemon and blocks until SIGINT/SIGTERM or ctx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	app, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("wire services", logging.Error(err))
		return err
	}
	defer app.Close()

	d, err := app.NewDaemon()
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check directory permissions and that no other daemon owns the data dir"),
		)
		return err
	}
	defer d.Stop()

	pidPath := filepath.Join(cfg.Paths.DataDir, "docflowd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("docflow daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// NewDaemon wraps the app's services in a daemon lifecycle.
func (a *App) NewDaemon() (*daemon.Daemon, error) {
	return daemon.New(daemon.Deps{
		Config:  a.Config,
		Store:   a.Store,
		Jobs:    a.Jobs,
		Tracker: a.Tracker,
		Bus:     a.Bus,
		Workers: a.Workers,
		Logger:  a.Logger,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("staging_dir", cfg.Paths.StagingDir),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_present", cfg.Paths.APIToken != ""),
		logging.Int("classification_labels", len(cfg.Classification.Labels)),
	}
	for _, device := range queue.Devices() {
		attrs = append(attrs, logging.Int("workers_"+string(device), cfg.WorkerCount(string(device))))
	}
	logger.Info("configuration snapshot", logging.Args(attrs...)...)
}
