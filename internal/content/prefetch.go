package content

import (
	"context"

	"reel/internal/catalog"
	"reel/internal/logging"
)

// PickPrefetchCandidate asks the catalog for items that are neither held,
// in flight, nor in exclude, and returns the first that could ever fit the
// budget.
func (s *Store) PickPrefetchCandidate(ctx context.Context, exclude map[string]struct{}) (catalog.Item, bool, error) {
	held, err := s.Identifiers(ctx)
	if err != nil {
		return catalog.Item{}, false, err
	}
	combined := make(map[string]struct{}, len(exclude)+len(held))
	for id := range exclude {
		combined[id] = struct{}{}
	}
	for id := range held {
		combined[id] = struct{}{}
	}
	s.mu.Lock()
	for id := range s.inflight {
		combined[id] = struct{}{}
	}
	s.mu.Unlock()

	candidates, err := s.source.FindCandidates(ctx, combined, s.candidateLimit, s.limits.MaxStorageBudget)
	if err != nil {
		return catalog.Item{}, false, err
	}
	for _, item := range candidates {
		if _, skip := combined[item.Identifier]; skip {
			continue
		}
		if s.limits.Sized(item.ByteSize) {
			return item, true, nil
		}
	}
	s.logger.Info("no prefetch candidate available",
		logging.Event("no_candidate"),
		logging.Int("examined", len(candidates)),
		logging.Int("excluded", len(combined)),
	)
	return catalog.Item{}, false, nil
}
