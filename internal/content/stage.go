package content

import (
	"context"
	"fmt"
	"os"

	"reel/internal/faults"
	"reel/internal/fileutil"
	"reel/internal/logging"
)

// Stage places the held file for identifier at dst, hard-linked when the
// filesystem allows and copied otherwise. The held file stays indexed.
func (s *Store) Stage(ctx context.Context, identifier, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Get(ctx, identifier)
	if err != nil {
		return err
	}
	if item == nil {
		return faults.Wrap(faults.ErrNotFound, "content", "stage", identifier+" is not held", nil)
	}
	info, err := os.Stat(item.LocalPath)
	if err != nil || info.Size() == 0 {
		return faults.Wrap(faults.ErrNextNotReady, "content", "stage", item.LocalPath, err)
	}
	linked, err := fileutil.LinkOrCopy(item.LocalPath, dst)
	if err != nil {
		return fmt.Errorf("stage %s at %s: %w", identifier, dst, err)
	}
	s.logger.Debug("held item staged",
		logging.Identifier(identifier),
		logging.String("path", dst),
		logging.Bool("hard_link", linked),
	)
	return nil
}
