package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"detectd/internal/config"
	"detectd/internal/daemon"
	"detectd/internal/logging"
	"detectd/internal/preflight"
	"detectd/internal/sentinel"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the detectd runtime loop and blocks until SIGINT or SIGTERM.
// A job in progress when the signal arrives is finished first.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		copyCfg := *cfg
		copyCfg.Logging.Level = opts.LogLevel
		cfg = &copyCfg
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// Lock before the pid file and detector workers: a refused instance must
	// not touch either.
	lock, err := daemon.AcquireLock(cfg.LockPath())
	if err != nil {
		logging.ErrorWithContext(logger, "daemon start refused", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the running instance or check 'detectd status'"),
		)
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	checks := preflight.RunAll(signalCtx, cfg)
	logDependencySnapshot(logger, cfg, checks)
	if err := preflight.Err(checks); err != nil {
		logging.ErrorWithContext(logger, "preflight failed", "preflight_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'detectd status' to see which check failed"),
		)
		return err
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	watcher := sentinel.NewFileWatcher(sentinel.OptionsFromConfig(cfg, logger))
	watcher.Start()
	defer watcher.Close()

	pipeline, err := Build(signalCtx, cfg, logger, BuildOptions{Source: watcher, Lock: lock})
	if err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the detector commands in the configuration"),
		)
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("detector shutdown incomplete", logging.Error(err))
		}
	}()

	if err := pipeline.Daemon.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("detectd shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config, checks []preflight.Result) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.Bool("video_enabled", cfg.Video.Enabled),
		logging.Any("stages", cfg.DetectorNames()),
	}
	for _, c := range checks {
		attrs = append(attrs, logging.Bool(c.Name, c.Passed))
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
