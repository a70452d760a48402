package rotation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"reel/internal/catalog"
	"reel/internal/content"
	"reel/internal/faults"
	"reel/internal/logging"
)

// prefetchTask tracks the single in-flight prefetch.
type prefetchTask struct {
	id      string
	started time.Time
	cancel  context.CancelFunc

	mu     sync.Mutex
	target string
}

func (t *prefetchTask) setTarget(identifier string) {
	t.mu.Lock()
	t.target = identifier
	t.mu.Unlock()
}

func (t *prefetchTask) identifier() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// prefetchResult is reported by the worker on Engine.results.
type prefetchResult struct {
	taskID     string
	identifier string
	held       *content.HeldItem
	err        error
}

// startPrefetchLocked launches the worker. Callers hold e.mu and have
// checked that no prefetch is in flight.
func (e *Engine) startPrefetchLocked() {
	task := &prefetchTask{id: uuid.NewString(), started: e.now()}
	ctx, cancel := context.WithTimeout(e.baseCtx, e.settings.DownloadTimeout)
	task.cancel = cancel
	e.prefetch = task

	exclude := e.excludedLocked()
	protect := e.protectedLocked()
	logger := e.logger.With(logging.TaskID(task.id))
	logger.Info("prefetch started",
		logging.Event("prefetch_started"),
		logging.Int("excluded", len(exclude)),
	)

	e.workers.Add(1)
	go func() {
		defer e.workers.Done()
		defer cancel()
		result := prefetchResult{taskID: task.id}
		item, ok, err := e.store.PickPrefetchCandidate(ctx, exclude)
		if err == nil && !ok && len(exclude) > len(protect) {
			// History only buys variety; repeat rather than stall.
			item, ok, err = e.store.PickPrefetchCandidate(ctx, protect)
		}
		switch {
		case err != nil:
			result.err = err
		case !ok:
		default:
			task.setTarget(item.Identifier)
			result.identifier = item.Identifier
			held, admitErr := e.admitWithReclaim(ctx, item, protect)
			if admitErr != nil {
				result.err = admitErr
			} else {
				result.held = &held
			}
		}
		// results has capacity one and at most one worker runs.
		e.results <- result
		e.signal()
	}()
}

// admitWithReclaim admits item, evicting unprotected items first when the
// budget refuses it.
func (e *Engine) admitWithReclaim(ctx context.Context, item catalog.Item, protect map[string]struct{}) (content.HeldItem, error) {
	held, err := e.store.Admit(ctx, item)
	if err == nil || !errors.Is(err, faults.ErrInsufficientBudget) {
		return held, err
	}
	evicted, reclaimErr := e.store.ReclaimFor(ctx, item.ByteSize, protect)
	if len(evicted) > 0 {
		e.logger.Info("reclaimed storage for admission",
			logging.Identifier(item.Identifier),
			logging.Event("storage_reclaimed"),
			logging.Int("evicted", len(evicted)),
		)
	}
	if reclaimErr != nil {
		return content.HeldItem{}, reclaimErr
	}
	return e.store.Admit(ctx, item)
}

// drainLocked applies a finished prefetch result if one is waiting.
func (e *Engine) drainLocked() {
	select {
	case result := <-e.results:
		e.applyResultLocked(result)
	default:
	}
}

// applyResultLocked binds a finished prefetch to UpNext. Staging waits for
// the swap so e.mu is never held across a file copy here.
func (e *Engine) applyResultLocked(result prefetchResult) {
	task := e.prefetch
	if task == nil || task.id != result.taskID {
		return
	}
	e.prefetch = nil
	logger := e.logger.With(logging.TaskID(result.taskID))
	elapsed := e.now().Sub(task.started)

	switch {
	case result.err != nil:
		if errors.Is(result.err, faults.ErrNotFound) || errors.Is(result.err, faults.ErrNoEligibleFile) {
			if result.identifier != "" {
				e.rejected[result.identifier] = struct{}{}
			}
		}
		e.recordErrorLocked(result.err)
		logging.WarnWithContext(logger, "prefetch failed; retrying next cycle", "prefetch_failed",
			logging.Identifier(result.identifier),
			logging.String("error_kind", faults.Kind(result.err)),
			logging.Error(result.err),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldImpact, "current item keeps playing"),
		)
		_ = e.persistLocked()
		return
	case result.held == nil:
		logger.Info("prefetch found no candidate", logging.Event("prefetch_empty"))
		return
	}

	held := *result.held
	if e.state.NowPlaying != nil && e.state.NowPlaying.Identifier == held.Identifier {
		return
	}
	e.state.UpNext = bindingFor(held, e.now().UTC())
	e.recordErrorLocked(nil)
	logger.Info("up next ready",
		logging.Identifier(held.Identifier),
		logging.Slot("up_next"),
		logging.Event("up_next_ready"),
		logging.String("title", held.Title),
		logging.Float64("duration_seconds", held.DurationSeconds),
		logging.Duration("elapsed", elapsed),
	)
	_ = e.persistLocked()
}
