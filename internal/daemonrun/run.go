package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"reel/internal/catalog"
	"reel/internal/config"
	"reel/internal/content"
	"reel/internal/daemon"
	"reel/internal/ipc"
	"reel/internal/logging"
	"reel/internal/preflight"
	"reel/internal/rotation"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipNetworkChecks omits the archive reachability preflight.
	SkipNetworkChecks bool
}

// Run starts the reel daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("reel-%s.log", runID))
	sessionID := uuid.NewString()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	baseLogger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With(logging.SessionID(sessionID))

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update reel.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "reel-*.log", Keep: logPath},
	)
	logPreflight(signalCtx, logger, cfg, opts.SkipNetworkChecks)

	pidPath := filepath.Join(cfg.Paths.StateDir, "reel.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	source, err := catalog.Open(cfg, logger)
	if err != nil {
		logger.Error("open catalog", logging.Error(err))
		return err
	}
	defer source.Close()

	store, err := content.Open(cfg, source, logger)
	if err != nil {
		logger.Error("open content store", logging.Error(err))
		return err
	}

	engine, err := rotation.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create rotation engine: %w", err)
	}

	d, err := daemon.New(cfg, store, engine, logger,
		daemon.WithLogPath(logPath),
		daemon.WithSessionID(sessionID),
	)
	if err != nil {
		engine.Close()
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	<-signalCtx.Done()
	logger.Info("reel daemon shutting down", logging.Event("daemon_shutdown"))
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "reel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, skipNetwork bool) {
	for _, result := range preflight.RunAll(ctx, cfg, skipNetwork) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "rotation may stall until the check passes"),
		)
	}
	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		logger.Info("dependency snapshot",
			logging.Event("dependency_snapshot"),
			logging.String("name", dep.Name),
			logging.Bool("available", dep.Available),
			logging.String("binary", dep.Command),
			logging.String("version", dep.Version),
		)
	}
}
