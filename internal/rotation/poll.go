package rotation

import (
	"context"
	"errors"
	"os"

	"reel/internal/faults"
	"reel/internal/logging"
	"reel/internal/notifications"
)

// Poll runs one monitoring cycle: it applies a finished prefetch, starts a
// prefetch once NowPlaying passes the threshold, and swaps when NowPlaying is
// about to end or a swap was requested.
func (e *Engine) Poll(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return faults.Wrap(faults.ErrHalted, "rotation", "poll", "engine stopped", nil)
	}
	e.drainLocked()
	idle := e.state.NowPlaying == nil
	e.mu.Unlock()

	if idle {
		return e.bootstrap(ctx)
	}

	next, due := e.checkPlayback(ctx)
	if !due {
		return nil
	}

	// Staging may copy a whole file, so it runs without e.mu. UpNext is
	// guarded from eviction and no prefetch runs while it is bound.
	stageErr := e.store.Stage(ctx, next, e.settings.StagingPath)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.state.Halted || e.state.UpNext == nil || e.state.UpNext.Identifier != next {
		return nil
	}
	return e.swapLocked(ctx, stageErr)
}

// checkPlayback repairs the fixed path and starts a prefetch when needed. It
// reports the UpNext identifier when a swap is due.
func (e *Engine) checkPlayback(ctx context.Context) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Halted || e.state.NowPlaying == nil {
		return "", false
	}
	e.repairFixedPathLocked(ctx)

	now := e.state.NowPlaying
	_, remaining, progress := e.progressLocked(now)
	unknownDuration := now.DurationSeconds <= 0

	if e.state.UpNext == nil {
		if e.prefetch == nil && (unknownDuration || progress >= e.settings.PrefetchThreshold) {
			e.startPrefetchLocked()
		}
		return "", false
	}

	due := e.swapRequested || (!unknownDuration && remaining <= e.settings.SwapLead.Seconds())
	return e.state.UpNext.Identifier, due
}

// swapLocked swaps the staged UpNext over the fixed path.
func (e *Engine) swapLocked(ctx context.Context, stageErr error) error {
	next := e.state.UpNext
	logger := e.logger.With(logging.Identifier(next.Identifier))

	if stageErr != nil {
		return e.deferSwapLocked(ctx, stageErr)
	}
	err := e.swapper.Swap(e.settings.PlaybackPath, e.settings.StagingPath)
	switch {
	case err == nil:
	case errors.Is(err, faults.ErrNextNotReady):
		return e.deferSwapLocked(ctx, err)
	default:
		return e.renameFailedLocked(err)
	}

	retired := e.state.NowPlaying
	startedAt := e.now().UTC()
	promoted := next.clone()
	promoted.StartedAt = &startedAt

	e.state.History = appendHistory(e.state.History, retired.Identifier, e.settings.HistoryRetention, e.settings.HistoryCap)
	e.state.TotalPlayed++
	e.state.NowPlaying = promoted
	e.state.UpNext = nil
	e.state.ConsecutiveRenameFailures = 0
	e.swapRequested = false
	e.recordErrorLocked(nil)
	persistErr := e.persistLocked()

	logger.Info("rotation advanced",
		logging.Event("rotation_advanced"),
		logging.Slot("now_playing"),
		logging.String("retired", retired.Identifier),
		logging.String("title", promoted.Title),
		logging.Int("total_played", e.state.TotalPlayed),
	)
	e.publish(notifications.EventNowPlaying, notifications.Payload{
		"identifier":   promoted.Identifier,
		"title":        promoted.Title,
		"total_played": e.state.TotalPlayed,
	})

	if e.settings.EvictOnRetire && retired.Identifier != promoted.Identifier {
		if err := e.store.Evict(ctx, retired.Identifier); err != nil {
			logger.Warn("evict retired item failed; left for reclaim",
				logging.String("retired", retired.Identifier),
				logging.Error(err),
			)
		}
	}
	return persistErr
}

// deferSwapLocked keeps NowPlaying, re-probes UpNext, and leaves the swap
// pending for the next cycle. UpNext is dropped when it is no longer held.
func (e *Engine) deferSwapLocked(ctx context.Context, cause error) error {
	next := e.state.UpNext
	if !errors.Is(cause, faults.ErrNextNotReady) {
		cause = faults.Wrap(faults.ErrNextNotReady, "rotation", "swap", next.Identifier, cause)
	}
	e.recordErrorLocked(cause)
	logger := e.logger.With(logging.Identifier(next.Identifier))
	logging.WarnWithContext(logger, "swap deferred; next item not ready", "swap_deferred",
		logging.Error(cause),
		logging.String(logging.FieldImpact, "current item keeps playing"),
	)

	held, err := e.store.Get(ctx, next.Identifier)
	switch {
	case err != nil:
		logger.Warn("lookup up next failed", logging.Error(err))
	case held == nil:
		logger.Info("up next no longer held; clearing", logging.Event("up_next_cleared"))
		e.state.UpNext = nil
	default:
		if duration, probeErr := e.probe.Duration(ctx, held.LocalPath); probeErr == nil && duration > 0 {
			next.DurationSeconds = duration
			if err := e.store.SetDuration(ctx, held.Identifier, duration); err != nil {
				logger.Debug("record re-probed duration failed", logging.Error(err))
			}
		}
	}
	_ = e.persistLocked()
	return cause
}

func (e *Engine) renameFailedLocked(err error) error {
	e.state.ConsecutiveRenameFailures++
	e.recordErrorLocked(err)
	attrs := []logging.Attr{
		logging.Error(err),
		logging.Int("consecutive_failures", e.state.ConsecutiveRenameFailures),
		logging.Int("max_failures", e.settings.MaxRenameFailures),
		logging.String(logging.FieldErrorHint, "inspect the playback directory; run 'reel resume' once fixed"),
	}
	if e.state.ConsecutiveRenameFailures >= e.settings.MaxRenameFailures {
		e.state.Halted = true
		attrs = append(attrs, logging.Bool(logging.FieldAlert, true), logging.State(string(StateHalted)))
		logging.ErrorWithContext(e.logger, "rotation halted after repeated rename failures", "rotation_halted", attrs...)
		e.publish(notifications.EventRotationHalted, notifications.Payload{
			"failures": e.state.ConsecutiveRenameFailures,
			"error":    err,
		})
	} else {
		logging.ErrorWithContext(e.logger, "swap rename failed; previous item kept", "swap_rename_failed", attrs...)
	}
	_ = e.persistLocked()
	return err
}

// repairFixedPathLocked restores the fixed path from the NowPlaying held
// file if something outside reel removed it. A cross-filesystem restore
// copies under e.mu, so Status waits for it.
func (e *Engine) repairFixedPathLocked(ctx context.Context) {
	if info, err := os.Stat(e.settings.PlaybackPath); err == nil && info.Size() > 0 {
		return
	}
	id := e.state.NowPlaying.Identifier
	if err := e.store.Stage(ctx, id, e.settings.PlaybackPath); err != nil {
		logging.ErrorWithContext(e.logger, "fixed playback path missing and could not be restored", "playback_path_missing",
			logging.Identifier(id),
			logging.Error(err),
		)
		return
	}
	logging.WarnWithContext(e.logger, "fixed playback path was missing; restored", "playback_path_restored",
		logging.Identifier(id),
	)
}
