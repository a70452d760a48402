package content

import (
	"context"
	"errors"
	"fmt"
	"os"

	"reel/internal/faults"
	"reel/internal/fileutil"
	"reel/internal/logging"
)

// Evict removes the held file and its index row. Evicting an identifier that
// is not held is a no-op.
func (s *Store) Evict(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.evictLocked(ctx, identifier, "requested")
	return err
}

func (s *Store) evictLocked(ctx context.Context, identifier, reason string) (bool, error) {
	item, err := s.Get(ctx, identifier)
	if err != nil {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	if err := os.Remove(item.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove %s: %w", item.LocalPath, err)
	}
	if err := s.deleteRow(ctx, identifier); err != nil {
		return false, fmt.Errorf("delete index row %s: %w", identifier, err)
	}
	if err := fileutil.SyncDir(s.contentDir); err != nil {
		s.logger.Debug("sync content dir failed", logging.Error(err))
	}
	s.logger.Info("held item evicted",
		logging.Identifier(identifier),
		logging.Event("item_evicted"),
		logging.String("reason", reason),
		logging.Int64("bytes", item.ByteSize),
	)
	return true, nil
}

// ReclaimFor evicts unprotected items, oldest download first and larger
// first on ties, until an item of needBytes would be admitted. It returns
// the evicted identifiers. When nothing evictable remains and the budget is
// still not satisfied the error carries ErrInsufficientBudget.
func (s *Store) ReclaimFor(ctx context.Context, needBytes int64, protect map[string]struct{}) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for {
		snap, err := s.snapshotLocked(ctx)
		if err != nil {
			return evicted, err
		}
		if s.limits.Admits(snap, needBytes) {
			return evicted, nil
		}
		victim, err := s.nextVictim(ctx, protect)
		if err != nil {
			return evicted, err
		}
		if victim == "" {
			return evicted, faults.Wrap(faults.ErrInsufficientBudget, "content", "reclaim",
				fmt.Sprintf("need %d bytes, held %d, free %d, nothing left to evict", needBytes, snap.HeldBytes, snap.FreeBytes), nil)
		}
		removed, err := s.evictLocked(ctx, victim, "reclaim")
		if err != nil {
			return evicted, err
		}
		if removed {
			evicted = append(evicted, victim)
		}
	}
}

// ReclaimUntilBudgetOk evicts unprotected items until the store is back
// within its limits.
func (s *Store) ReclaimUntilBudgetOk(ctx context.Context, protect map[string]struct{}) ([]string, error) {
	return s.ReclaimFor(ctx, 0, protect)
}

func (s *Store) nextVictim(ctx context.Context, protect map[string]struct{}) (string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	for _, item := range items {
		if _, keep := protect[item.Identifier]; keep {
			continue
		}
		return item.Identifier, nil
	}
	return "", nil
}
