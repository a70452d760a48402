package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"reel/internal/faults"
)

// Library reads the scraped metadata library. It never writes.
type Library struct {
	db        *sql.DB
	path      string
	mediaType string
}

// OpenLibrary opens the sqlite metadata library at path. A missing file is
// reported as ErrCatalogUnreachable rather than silently creating one.
func OpenLibrary(path, mediaType string) (*Library, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "open library", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "open library", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA query_only = ON"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return &Library{db: db, path: path, mediaType: strings.TrimSpace(mediaType)}, nil
}

// Close releases the database handle.
func (l *Library) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the library file location.
func (l *Library) Path() string {
	return l.path
}

// Eligible returns every item of the configured media type with a declared
// size in (0, maxByteSize), ordered by identifier.
func (l *Library) Eligible(ctx context.Context, maxByteSize int64) ([]Item, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT identifier, COALESCE(title, ''), CAST(item_size AS INTEGER), COALESCE(mediatype, ''),
		       CAST(COALESCE(year, 0) AS INTEGER), CAST(COALESCE(downloads, 0) AS INTEGER)
		FROM media
		WHERE mediatype = ? AND item_size > 0 AND item_size < ?
		ORDER BY identifier`, l.mediaType, maxByteSize)
	if err != nil {
		return nil, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "query media", "", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "scan media", "", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "iterate media", "", err)
	}
	return items, nil
}

// Lookup returns the catalog row for identifier.
func (l *Library) Lookup(ctx context.Context, identifier string) (Item, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT identifier, COALESCE(title, ''), CAST(item_size AS INTEGER), COALESCE(mediatype, ''),
		       CAST(COALESCE(year, 0) AS INTEGER), CAST(COALESCE(downloads, 0) AS INTEGER)
		FROM media WHERE identifier = ?`, identifier)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, faults.Wrap(faults.ErrNotFound, "catalog", "lookup", identifier, nil)
	}
	if err != nil {
		return Item{}, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "lookup", identifier, err)
	}
	return item, nil
}

// Count returns the number of items of the configured media type.
func (l *Library) Count(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media WHERE mediatype = ?`, l.mediaType).Scan(&count)
	if err != nil {
		return 0, faults.Wrap(faults.ErrCatalogUnreachable, "catalog", "count", "", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (Item, error) {
	var (
		item      Item
		size      sql.NullInt64
		year      sql.NullInt64
		downloads sql.NullInt64
	)
	if err := scanner.Scan(&item.Identifier, &item.Title, &size, &item.MediaType, &year, &downloads); err != nil {
		return Item{}, err
	}
	item.ByteSize = size.Int64
	item.Year = int(year.Int64)
	item.Downloads = downloads.Int64
	item.Title = strings.TrimSpace(item.Title)
	return item, nil
}
