package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/fsnotify/fsnotify"

	"reel/internal/budget"
	"reel/internal/logging"
)

// Reconcile drops index rows whose file no longer exists and returns their
// identifiers.
func (s *Store) Reconcile(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var dropped []string
	for _, item := range items {
		if _, err := os.Stat(item.LocalPath); err == nil || !errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := s.deleteRow(ctx, item.Identifier); err != nil {
			return dropped, fmt.Errorf("drop vanished %s: %w", item.Identifier, err)
		}
		dropped = append(dropped, item.Identifier)
		logging.WarnWithContext(s.logger, "held file vanished; dropped from index", "held_file_vanished",
			logging.Identifier(item.Identifier),
			logging.String("path", item.LocalPath),
			logging.String(logging.FieldErrorHint, "something outside reel removed files from content_dir"),
		)
	}
	return dropped, nil
}

// Watch observes the content directory and reconciles the index whenever a
// held file is removed or renamed away. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.contentDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.contentDir, err)
	}
	s.logger.Info("content watcher started", logging.String("content_dir", s.contentDir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantRemoval(event) {
				continue
			}
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("reconcile after removal failed", logging.String("path", event.Name), logging.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("content watcher error", logging.Error(err))
		}
	}
}

func relevantRemoval(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}

// Stats summarises the store for status output.
type Stats struct {
	budget.Snapshot
	Limits     budget.Limits `json:"limits"`
	InFlight   []string      `json:"in_flight,omitempty"`
	IndexPath  string        `json:"index_path"`
	ContentDir string        `json:"content_dir"`
}

// Stats measures the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.tracker.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Snapshot:   snap,
		Limits:     s.limits,
		IndexPath:  s.path,
		ContentDir: s.contentDir,
	}
	s.mu.Lock()
	for id := range s.inflight {
		stats.InFlight = append(stats.InFlight, id)
	}
	s.mu.Unlock()
	slices.Sort(stats.InFlight)
	return stats, nil
}
