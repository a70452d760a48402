package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"reel/internal/config"
	"reel/internal/content"
	"reel/internal/deps"
	"reel/internal/faults"
	"reel/internal/logging"
	"reel/internal/notifications"
	"reel/internal/preflight"
	"reel/internal/rotation"
)

// Daemon runs the rotation engine and content store watcher and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *content.Store
	engine    *rotation.Engine
	notifier  notifications.Service
	logPath   string
	sessionID string
	deps      []deps.Status

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	lastErr string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	SessionID    string          `json:"session_id,omitempty"`
	Rotation     rotation.Status `json:"rotation"`
	Storage      content.Stats   `json:"storage"`
	StorageError string          `json:"storage_error,omitempty"`
	RunError     string          `json:"run_error,omitempty"`
	LockFilePath string          `json:"lock_file_path"`
	LogPath      string          `json:"log_path,omitempty"`
	StatePath    string          `json:"state_path"`
	Dependencies []deps.Status   `json:"dependencies,omitempty"`
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogPath records the per-run log file reported in Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// WithSessionID tags the daemon with the run's session identifier.
func WithSessionID(id string) Option {
	return func(d *Daemon) {
		d.sessionID = id
	}
}

// WithNotifier replaces the ntfy publisher built from config.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *content.Store, engine *rotation.Engine, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || engine == nil {
		return nil, errors.New("daemon requires config, content store, and rotation engine")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		engine:   engine,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		deps:     preflight.CheckSystemDeps(context.Background(), cfg),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock and launches the rotation loop and the
// content directory watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reel daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.setRunError(nil)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		if err := d.engine.Run(d.ctx); err != nil {
			d.setRunError(err)
			logging.ErrorWithContext(d.logger, "rotation loop exited", "rotation_exited",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check catalog reachability and content_dir permissions"),
				logging.String(logging.FieldImpact, "playback file is no longer rotated"),
				logging.Bool(logging.FieldAlert, true),
			)
			d.notifyError(err)
		}
	}()
	go func() {
		defer d.wg.Done()
		if err := d.store.Watch(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "content watcher stopped", "content_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "external deletions are only noticed on admission"),
			)
		}
	}()

	d.running.Store(true)
	d.logger.Info("reel daemon started",
		logging.String("lock", d.lockPath),
		logging.SessionID(d.sessionID),
		logging.Event("daemon_started"),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. The
// rotation engine persists its state before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("reel daemon stopped", logging.Event("daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	engineErr := d.engine.Close()
	storeErr := d.store.Close()
	return errors.Join(engineErr, storeErr)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		SessionID:    d.sessionID,
		Rotation:     d.engine.Status(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		StatePath:    d.cfg.StateFile(),
		Dependencies: d.deps,
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		status.StorageError = err.Error()
	}
	status.Storage = stats
	d.mu.Lock()
	status.RunError = d.lastErr
	d.mu.Unlock()
	return status
}

// RequestSwap asks the engine to promote UpNext on its next cycle.
func (d *Daemon) RequestSwap() error {
	return d.engine.RequestSwap()
}

// Resume clears a rotation halt.
func (d *Daemon) Resume() error {
	return d.engine.Resume()
}

// Reclaim evicts retained items until the held total is within budget.
// Items bound to a playback slot are never evicted.
func (d *Daemon) Reclaim(ctx context.Context) ([]string, error) {
	evicted, err := d.engine.Reclaim(ctx)
	if len(evicted) > 0 {
		d.logger.Info("manual reclaim evicted items",
			logging.Int("count", len(evicted)),
			logging.String("identifiers", strings.Join(evicted, ",")),
			logging.Event("manual_reclaim"),
		)
	}
	return evicted, err
}

// Evict removes one retained item. Slot-bound items are refused.
func (d *Daemon) Evict(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return faults.Wrap(faults.ErrValidation, "daemon", "evict", "identifier is required", nil)
	}
	return d.engine.Evict(ctx, identifier)
}

// ListHeld returns the held items in eviction order.
func (d *Daemon) ListHeld(ctx context.Context) ([]content.HeldItem, error) {
	return d.store.List(ctx)
}

// StoreStats measures the content store.
func (d *Daemon) StoreStats(ctx context.Context) (content.Stats, error) {
	return d.store.Stats(ctx)
}

// Reconcile drops index rows whose files have vanished.
func (d *Daemon) Reconcile(ctx context.Context) ([]string, error) {
	return d.store.Reconcile(ctx)
}

func (d *Daemon) notifyError(err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if notifyErr := d.notifier.Publish(ctx, notifications.EventError, notifications.Payload{
		"context": "rotation",
		"error":   err,
	}); notifyErr != nil {
		d.logger.Warn("error notification failed", logging.Error(notifyErr))
	}
}

func (d *Daemon) setRunError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		d.lastErr = ""
		return
	}
	d.lastErr = err.Error()
}
