package rotation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reel/internal/catalog"
	"reel/internal/config"
	"reel/internal/content"
	"reel/internal/faults"
	"reel/internal/logging"
	"reel/internal/media/ffprobe"
	"reel/internal/notifications"
	"reel/internal/swap"
)

const notifyTimeout = 30 * time.Second

// Store is the subset of the content store the engine drives.
type Store interface {
	Get(ctx context.Context, identifier string) (*content.HeldItem, error)
	List(ctx context.Context) ([]content.HeldItem, error)
	Admit(ctx context.Context, item catalog.Item) (content.HeldItem, error)
	Evict(ctx context.Context, identifier string) error
	ReclaimFor(ctx context.Context, needBytes int64, protect map[string]struct{}) ([]string, error)
	PickPrefetchCandidate(ctx context.Context, exclude map[string]struct{}) (catalog.Item, bool, error)
	Stage(ctx context.Context, identifier, dst string) error
	SetDuration(ctx context.Context, identifier string, seconds float64) error
}

// Swapper exchanges the fixed playback file for a staged one.
type Swapper interface {
	Swap(currentPath, nextPath string) error
}

// Settings are the rotation timings and limits.
type Settings struct {
	PrefetchThreshold float64
	SwapLead          time.Duration
	MonitorInterval   time.Duration
	HistoryRetention  int
	HistoryCap        int
	DownloadTimeout   time.Duration
	InitRetryAttempts int
	MaxRenameFailures int
	EvictOnRetire     bool
	InitBackoffMin    time.Duration
	InitBackoffMax    time.Duration
	PlaybackPath      string
	StagingPath       string
	StatePath         string
}

// SettingsFromConfig extracts rotation settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PrefetchThreshold: cfg.Rotation.PrefetchThresholdFraction,
		SwapLead:          cfg.SwapLead(),
		MonitorInterval:   cfg.MonitorInterval(),
		HistoryRetention:  cfg.Rotation.HistoryRetentionCount,
		HistoryCap:        cfg.Rotation.HistoryCap,
		DownloadTimeout:   cfg.DownloadTimeout(),
		InitRetryAttempts: cfg.Rotation.InitRetryAttempts,
		MaxRenameFailures: cfg.Rotation.MaxRenameFailures,
		EvictOnRetire:     cfg.Rotation.EvictOnRetire,
		InitBackoffMin:    time.Second,
		InitBackoffMax:    time.Minute,
		PlaybackPath:      cfg.Paths.PlaybackFile,
		StagingPath:       cfg.StagingFile(),
		StatePath:         cfg.StateFile(),
	}
}

// Engine owns the playback slots. Methods are safe for concurrent use.
type Engine struct {
	store    Store
	swapper  Swapper
	probe    content.Prober
	notifier notifications.Service
	logger   *slog.Logger
	now      func() time.Time
	settings Settings

	baseCtx   context.Context
	cancelAll context.CancelFunc
	workers   sync.WaitGroup
	results   chan prefetchResult
	wake      chan struct{}

	mu            sync.Mutex
	state         PersistedState
	recovered     bool
	swapRequested bool
	prefetch      *prefetchTask
	rejected      map[string]struct{}
	closed        bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSwapper replaces the swap executor.
func WithSwapper(s Swapper) Option {
	return func(e *Engine) {
		if s != nil {
			e.swapper = s
		}
	}
}

// WithProber replaces the duration probe used when re-probing UpNext.
func WithProber(p content.Prober) Option {
	return func(e *Engine) {
		if p != nil {
			e.probe = p
		}
	}
}

// WithNotifier replaces the ntfy publisher built from config.
func WithNotifier(n notifications.Service) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithInitBackoff bounds the delay between Initialize attempts.
func WithInitBackoff(minDelay, maxDelay time.Duration) Option {
	return func(e *Engine) {
		e.settings.InitBackoffMin = minDelay
		e.settings.InitBackoffMax = maxDelay
	}
}

// New constructs an Engine over store. Nothing is read from disk until
// Initialize or Recover.
func New(cfg *config.Config, store Store, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("rotation: config is nil")
	}
	if store == nil {
		return nil, errors.New("rotation: store is nil")
	}
	logger = logging.NewComponentLogger(logger, "rotation")
	baseCtx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:     store,
		swapper:   swap.New(logger),
		probe:     ffprobe.NewProber(cfg.FFprobeBinary()),
		notifier:  notifications.NewService(cfg),
		logger:    logger,
		now:       time.Now,
		settings:  SettingsFromConfig(cfg),
		baseCtx:   baseCtx,
		cancelAll: cancel,
		results:   make(chan prefetchResult, 1),
		wake:      make(chan struct{}, 1),
		state:     PersistedState{Version: stateFileVersion},
		rejected:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Status is a point-in-time view of the engine.
type Status struct {
	State                     State        `json:"state"`
	NowPlaying                *SlotBinding `json:"now_playing,omitempty"`
	UpNext                    *SlotBinding `json:"up_next,omitempty"`
	ElapsedSeconds            float64      `json:"elapsed_seconds"`
	RemainingSeconds          float64      `json:"remaining_seconds"`
	Progress                  float64      `json:"progress"`
	PrefetchInFlight          bool         `json:"prefetch_in_flight"`
	PrefetchTaskID            string       `json:"prefetch_task_id,omitempty"`
	PrefetchIdentifier        string       `json:"prefetch_identifier,omitempty"`
	SwapRequested             bool         `json:"swap_requested"`
	TotalPlayed               int          `json:"total_played"`
	HistoryLength             int          `json:"history_length"`
	ConsecutiveRenameFailures int          `json:"consecutive_rename_failures"`
	LastError                 string       `json:"last_error,omitempty"`
	UpdatedAt                 time.Time    `json:"updated_at"`
}

// Status reports the current slots and counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		State:                     e.stateLocked(),
		NowPlaying:                e.state.NowPlaying.clone(),
		UpNext:                    e.state.UpNext.clone(),
		SwapRequested:             e.swapRequested,
		TotalPlayed:               e.state.TotalPlayed,
		HistoryLength:             len(e.state.History),
		ConsecutiveRenameFailures: e.state.ConsecutiveRenameFailures,
		LastError:                 e.state.LastError,
		UpdatedAt:                 e.state.UpdatedAt,
	}
	if e.prefetch != nil {
		status.PrefetchInFlight = true
		status.PrefetchTaskID = e.prefetch.id
		status.PrefetchIdentifier = e.prefetch.identifier()
	}
	if now := e.state.NowPlaying; now != nil {
		status.ElapsedSeconds, status.RemainingSeconds, status.Progress = e.progressLocked(now)
	}
	return status
}

// Evict removes one retained item. Items bound to a playback slot, or being
// admitted by the prefetch worker, are refused. The check and the removal
// both run under e.mu.
func (e *Engine) Evict(ctx context.Context, identifier string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainLocked()
	if _, bound := e.guardedLocked()[identifier]; bound {
		return faults.Wrap(faults.ErrValidation, "rotation", "evict", identifier+" is bound to a playback slot", nil)
	}
	return e.store.Evict(ctx, identifier)
}

// Reclaim evicts unguarded items until the store is back within budget.
func (e *Engine) Reclaim(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drainLocked()
	return e.store.ReclaimFor(ctx, 0, e.guardedLocked())
}

func (e *Engine) stateLocked() State {
	switch {
	case e.closed:
		return StateStopped
	case e.state.Halted:
		return StateHalted
	case e.state.NowPlaying == nil:
		return StateIdle
	case e.state.UpNext != nil:
		return StatePlayingNextReady
	default:
		return StatePlaying
	}
}

// progressLocked returns elapsed seconds, remaining seconds, and the
// elapsed fraction. Remaining and progress are zero when the duration is
// unknown.
func (e *Engine) progressLocked(binding *SlotBinding) (float64, float64, float64) {
	if binding.StartedAt == nil {
		return 0, binding.DurationSeconds, 0
	}
	elapsed := e.now().Sub(*binding.StartedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	if binding.DurationSeconds <= 0 {
		return elapsed, 0, 0
	}
	remaining := binding.DurationSeconds - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return elapsed, remaining, elapsed / binding.DurationSeconds
}

// RequestSwap asks for UpNext to replace NowPlaying on the next cycle, as an
// end-of-media signal or an administrative skip.
func (e *Engine) RequestSwap() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.closed:
		return faults.Wrap(faults.ErrHalted, "rotation", "request swap", "engine stopped", nil)
	case e.state.Halted:
		return faults.Wrap(faults.ErrHalted, "rotation", "request swap", "rotation halted; resume first", nil)
	case e.state.NowPlaying == nil:
		return faults.Wrap(faults.ErrNextNotReady, "rotation", "request swap", "nothing is playing", nil)
	}
	e.swapRequested = true
	e.logger.Info("swap requested", logging.Event("swap_requested"))
	e.signal()
	return nil
}

// Resume clears a halt caused by repeated rename failures.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return faults.Wrap(faults.ErrHalted, "rotation", "resume", "engine stopped", nil)
	}
	wasHalted := e.state.Halted
	e.state.Halted = false
	e.state.ConsecutiveRenameFailures = 0
	if wasHalted {
		e.logger.Info("rotation resumed", logging.Event("rotation_resumed"))
	}
	err := e.persistLocked()
	e.signal()
	return err
}

// Close cancels any in-flight prefetch, waits for it, and persists state.
// It is safe to call more than once.
func (e *Engine) Close() error {
	e.cancelAll()
	e.workers.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.prefetch = nil
	return e.persistLocked()
}

// publish sends event without holding up the monitor loop.
func (e *Engine) publish(event notifications.Event, payload notifications.Payload) {
	notifier, logger := e.notifier, e.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notifier.Publish(ctx, event, payload); err != nil {
			logger.Warn("notification failed",
				logging.String("notification", string(event)),
				logging.Error(err),
			)
		}
	}()
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) persistLocked() error {
	e.state.UpdatedAt = e.now().UTC()
	if err := SaveState(e.settings.StatePath, e.state); err != nil {
		logging.WarnWithContext(e.logger, "persist rotation state failed", "state_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
		)
		return err
	}
	return nil
}

func (e *Engine) recordErrorLocked(err error) {
	if err == nil {
		e.state.LastError = ""
		return
	}
	e.state.LastError = err.Error()
}

func (e *Engine) protectedLocked() map[string]struct{} {
	protect := make(map[string]struct{}, 2)
	if e.state.NowPlaying != nil {
		protect[e.state.NowPlaying.Identifier] = struct{}{}
	}
	if e.state.UpNext != nil {
		protect[e.state.UpNext.Identifier] = struct{}{}
	}
	return protect
}

// guardedLocked extends the slot-bound set with the item the prefetch worker
// is admitting, which is held before its result is drained.
func (e *Engine) guardedLocked() map[string]struct{} {
	guard := e.protectedLocked()
	if e.prefetch != nil {
		if id := e.prefetch.identifier(); id != "" {
			guard[id] = struct{}{}
		}
	}
	return guard
}

func (e *Engine) excludedLocked() map[string]struct{} {
	exclude := historySet(e.state.History)
	for id := range e.protectedLocked() {
		exclude[id] = struct{}{}
	}
	for id := range e.rejected {
		exclude[id] = struct{}{}
	}
	return exclude
}

func bindingFor(held content.HeldItem, at time.Time) *SlotBinding {
	return &SlotBinding{
		Identifier:      held.Identifier,
		Title:           held.Title,
		DurationSeconds: held.DurationSeconds,
		BoundAt:         at,
	}
}
