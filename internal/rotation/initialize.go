package rotation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jpillora/backoff"

	"reel/internal/content"
	"reel/internal/faults"
	"reel/internal/logging"
)

// Recover loads persisted state. NowPlaying is kept only when its held file
// and the fixed playback path both exist and are non-empty; otherwise the
// engine is left idle. UpNext is kept only when its held file exists. It
// reports whether NowPlaying was recovered.
func (e *Engine) Recover(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recovered {
		return e.state.NowPlaying != nil, nil
	}

	state, err := LoadState(e.settings.StatePath)
	if err != nil {
		logging.WarnWithContext(e.logger, "persisted rotation state unreadable; starting fresh", "state_reset",
			logging.Error(err),
			logging.String(logging.FieldImpact, "rotation re-initializes from the content store"),
		)
		state = PersistedState{Version: stateFileVersion}
	}
	e.recovered = true

	if state.NowPlaying != nil && !e.heldFileReady(ctx, state.NowPlaying.Identifier) {
		e.logger.Info("now playing item no longer held; starting idle",
			logging.Identifier(state.NowPlaying.Identifier),
			logging.Event("state_reset"),
		)
		state.NowPlaying = nil
	}
	if state.NowPlaying != nil && !nonEmptyFile(e.settings.PlaybackPath) {
		e.logger.Info("fixed playback path missing; starting idle",
			logging.String("path", e.settings.PlaybackPath),
			logging.Event("state_reset"),
		)
		state.NowPlaying = nil
	}
	if state.NowPlaying == nil {
		state.UpNext = nil
	}
	if state.UpNext != nil && !e.heldFileReady(ctx, state.UpNext.Identifier) {
		state.UpNext = nil
	}
	if state.NowPlaying != nil && state.NowPlaying.StartedAt == nil {
		started := e.now().UTC()
		state.NowPlaying.StartedAt = &started
	}

	e.state = state
	if e.state.NowPlaying != nil {
		e.logger.Info("rotation state recovered",
			logging.Identifier(e.state.NowPlaying.Identifier),
			logging.Event("state_recovered"),
			logging.Bool("up_next", e.state.UpNext != nil),
			logging.Int("total_played", e.state.TotalPlayed),
		)
	}
	return e.state.NowPlaying != nil, e.persistLocked()
}

func (e *Engine) heldFileReady(ctx context.Context, identifier string) bool {
	held, err := e.store.Get(ctx, identifier)
	if err != nil || held == nil {
		return false
	}
	return nonEmptyFile(held.LocalPath)
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Initialize recovers persisted state or binds a first item to NowPlaying.
// It retries with exponential backoff and gives up only after
// InitRetryAttempts consecutive catalog-unreachable failures.
func (e *Engine) Initialize(ctx context.Context) error {
	recovered, err := e.Recover(ctx)
	if err != nil {
		e.logger.Debug("persist recovered state failed", logging.Error(err))
	}
	if recovered {
		return nil
	}

	b := &backoff.Backoff{Min: e.settings.InitBackoffMin, Max: e.settings.InitBackoffMax, Factor: 2, Jitter: true}
	unreachable := 0
	for {
		err := e.bootstrap(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, faults.ErrCatalogUnreachable) {
			unreachable++
			if unreachable >= e.settings.InitRetryAttempts {
				return fmt.Errorf("initialize rotation after %d attempts: %w", unreachable, err)
			}
		} else {
			unreachable = 0
		}
		delay := b.Duration()
		logging.WarnWithContext(e.logger, "initialize attempt failed; retrying", "initialize_retry",
			logging.Error(err),
			logging.String("error_kind", faults.Kind(err)),
			logging.Duration("retry_in", delay),
			logging.String(logging.FieldImpact, "nothing plays until an item is bound"),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// bootstrap binds one item to an idle engine: an already-held item that was
// not played recently if there is one, otherwise a freshly admitted
// candidate.
func (e *Engine) bootstrap(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return faults.Wrap(faults.ErrHalted, "rotation", "initialize", "engine stopped", nil)
	}
	if e.state.NowPlaying != nil {
		e.mu.Unlock()
		return nil
	}
	exclude := e.excludedLocked()
	e.mu.Unlock()

	held, err := e.pickInitial(ctx, exclude)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.NowPlaying != nil {
		return nil
	}
	if err := e.store.Stage(ctx, held.Identifier, e.settings.StagingPath); err != nil {
		return err
	}
	if err := e.swapper.Swap(e.settings.PlaybackPath, e.settings.StagingPath); err != nil {
		return err
	}
	now := e.now().UTC()
	binding := bindingFor(held, now)
	binding.StartedAt = &now
	e.state.NowPlaying = binding
	if e.state.UpNext != nil && e.state.UpNext.Identifier == held.Identifier {
		e.state.UpNext = nil
	}
	e.recordErrorLocked(nil)
	e.logger.Info("now playing bound",
		logging.Identifier(held.Identifier),
		logging.Event("now_playing_bound"),
		logging.String("title", held.Title),
		logging.Float64("duration_seconds", held.DurationSeconds),
	)
	return e.persistLocked()
}

func (e *Engine) pickInitial(ctx context.Context, exclude map[string]struct{}) (content.HeldItem, error) {
	items, err := e.store.List(ctx)
	if err != nil {
		return content.HeldItem{}, err
	}
	for _, item := range items {
		if _, skip := exclude[item.Identifier]; skip {
			continue
		}
		if nonEmptyFile(item.LocalPath) {
			return item, nil
		}
	}

	candidate, ok, err := e.store.PickPrefetchCandidate(ctx, exclude)
	if err != nil {
		return content.HeldItem{}, err
	}
	if !ok {
		for _, item := range items {
			if nonEmptyFile(item.LocalPath) {
				return item, nil
			}
		}
		candidate, ok, err = e.store.PickPrefetchCandidate(ctx, nil)
		if err != nil {
			return content.HeldItem{}, err
		}
		if !ok {
			return content.HeldItem{}, faults.Wrap(faults.ErrNotFound, "rotation", "initialize", "catalog offered no admissible item", nil)
		}
	}

	dlCtx, cancel := context.WithTimeout(ctx, e.settings.DownloadTimeout)
	defer cancel()
	return e.admitWithReclaim(dlCtx, candidate, nil)
}
