package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"reel/internal/budget"
	"reel/internal/catalog"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/media/ffprobe"
)

const (
	partialPrefix = ".partial-"

	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Prober resolves the playable duration of a local file.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Store manages held files and their sqlite index.
type Store struct {
	db         *sql.DB
	path       string
	contentDir string
	source     catalog.Source
	tracker    *budget.Tracker
	limits     budget.Limits
	probe      Prober
	logger     *slog.Logger
	now        func() time.Time

	candidateLimit int

	// mu serialises reservation, publish, eviction, and staging. Downloads
	// run without it.
	mu       sync.Mutex
	inflight map[string]int64
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	now    func() time.Time
	probe  Prober
	statfs budget.StatfsFunc
}

// WithClock replaces time.Now for download timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithProber replaces the ffprobe-backed duration probe.
func WithProber(p Prober) Option {
	return func(o *storeOptions) {
		if p != nil {
			o.probe = p
		}
	}
}

// WithStatfs replaces the free-space probe used for admission.
func WithStatfs(fn budget.StatfsFunc) Option {
	return func(o *storeOptions) {
		o.statfs = fn
	}
}

// Open initializes or connects to the content index and removes partial
// downloads left behind by a previous process.
func Open(cfg *config.Config, source catalog.Source, logger *slog.Logger, opts ...Option) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("content: config is nil")
	}
	if source == nil {
		return nil, errors.New("content: catalog source is nil")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	options := storeOptions{now: time.Now, probe: ffprobe.NewProber(cfg.FFprobeBinary())}
	for _, opt := range opts {
		opt(&options)
	}

	dbPath := cfg.IndexPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{
		db:             db,
		path:           dbPath,
		contentDir:     cfg.Paths.ContentDir,
		source:         source,
		limits:         budget.LimitsFromConfig(cfg),
		probe:          options.probe,
		logger:         logging.NewComponentLogger(logger, "content"),
		now:            options.now,
		candidateLimit: cfg.Catalog.CandidateLimit,
		inflight:       make(map[string]int64),
	}
	var trackerOpts []budget.Option
	if options.statfs != nil {
		trackerOpts = append(trackerOpts, budget.WithStatfs(options.statfs))
	}
	store.tracker = budget.NewTracker(store.contentDir, store.limits, store, trackerOpts...)

	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.removeStalePartials()
	return store, nil
}

// Close closes the index.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Tracker exposes the budget tracker measuring this store.
func (s *Store) Tracker() *budget.Tracker {
	return s.tracker
}

// ContentDir returns the directory holding downloaded files.
func (s *Store) ContentDir() string {
	return s.contentDir
}

func (s *Store) removeStalePartials() {
	entries, err := os.ReadDir(s.contentDir)
	if err != nil {
		s.logger.Warn("scan content dir for partial downloads failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "partial_sweep_failed"),
			logging.String(logging.FieldErrorHint, "check content_dir permissions"),
		)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), partialPrefix) {
			continue
		}
		path := filepath.Join(s.contentDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove stale partial download failed", logging.String("path", path), logging.Error(err))
			continue
		}
		s.logger.Info("removed stale partial download", logging.String("path", path))
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
