package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reel/internal/catalog"
)

// HeldItem is a catalog item whose file is complete in the content
// directory.
type HeldItem struct {
	catalog.Item
	DurationSeconds float64   `json:"duration_seconds"`
	LocalPath       string    `json:"local_path"`
	DownloadedAt    time.Time `json:"downloaded_at"`
}

const heldColumns = `identifier, title, byte_size, duration_seconds, local_path, downloaded_at, mediatype, year, downloads`

func scanHeld(scanner interface{ Scan(dest ...any) error }) (*HeldItem, error) {
	var (
		item         HeldItem
		downloadedAt int64
		year         int64
	)
	if err := scanner.Scan(
		&item.Identifier,
		&item.Title,
		&item.ByteSize,
		&item.DurationSeconds,
		&item.LocalPath,
		&downloadedAt,
		&item.MediaType,
		&year,
		&item.Downloads,
	); err != nil {
		return nil, err
	}
	item.Year = int(year)
	item.DownloadedAt = time.Unix(0, downloadedAt).UTC()
	return &item, nil
}

// Get returns the held item for identifier, or nil when it is not held.
func (s *Store) Get(ctx context.Context, identifier string) (*HeldItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+heldColumns+` FROM held_items WHERE identifier = ?`, identifier)
	item, err := scanHeld(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get held item: %w", err)
	}
	return item, nil
}

// List returns every held item, oldest download first. Ties put the larger
// item first, which is also eviction order.
func (s *Store) List(ctx context.Context) ([]HeldItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+heldColumns+` FROM held_items ORDER BY downloaded_at ASC, byte_size DESC, identifier ASC`)
	if err != nil {
		return nil, fmt.Errorf("list held items: %w", err)
	}
	defer rows.Close()

	var items []HeldItem
	for rows.Next() {
		item, err := scanHeld(rows)
		if err != nil {
			return nil, fmt.Errorf("scan held item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate held items: %w", err)
	}
	return items, nil
}

// HeldPaths lists the local path of every indexed item.
func (s *Store) HeldPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT local_path FROM held_items`)
	if err != nil {
		return nil, fmt.Errorf("list held paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan held path: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// Identifiers returns the set of held identifiers.
func (s *Store) Identifiers(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT identifier FROM held_items`)
	if err != nil {
		return nil, fmt.Errorf("list held identifiers: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan held identifier: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// SetDuration records a re-probed duration for identifier.
func (s *Store) SetDuration(ctx context.Context, identifier string, seconds float64) error {
	if err := s.exec(ctx, `UPDATE held_items SET duration_seconds = ? WHERE identifier = ?`, seconds, identifier); err != nil {
		return fmt.Errorf("update duration: %w", err)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, item HeldItem) error {
	return s.exec(ctx,
		`INSERT INTO held_items (`+heldColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.Identifier,
		item.Title,
		item.ByteSize,
		item.DurationSeconds,
		item.LocalPath,
		item.DownloadedAt.UnixNano(),
		item.MediaType,
		item.Year,
		item.Downloads,
	)
}

func (s *Store) deleteRow(ctx context.Context, identifier string) error {
	return s.exec(ctx, `DELETE FROM held_items WHERE identifier = ?`, identifier)
}
