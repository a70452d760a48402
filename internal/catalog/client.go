package catalog

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"reel/internal/config"
	"reel/internal/logging"
)

// Client combines the metadata library with the archive resolver.
type Client struct {
	library *Library
	archive *Archive
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

var _ Source = (*Client)(nil)

// NewClient wires a library and archive. seed drives candidate ordering;
// zero seeds from the clock.
func NewClient(library *Library, archive *Archive, seed int64, logger *slog.Logger) *Client {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Client{
		library: library,
		archive: archive,
		logger:  logging.NewComponentLogger(logger, "catalog"),
		rng:     rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1)),
	}
}

// Open builds a Client from configuration.
func Open(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	library, err := OpenLibrary(cfg.Catalog.DBPath, cfg.Catalog.MediaType)
	if err != nil {
		return nil, err
	}
	archive, err := NewArchive(cfg.Catalog.ArchiveBaseURL, cfg.Catalog.FileExtensions, cfg.Storage.MaxItemSizeBytes,
		WithRequestTimeout(cfg.CatalogRequestTimeout()),
		WithRetry(cfg.Catalog.RetryAttempts, defaultRetryBaseDelay, defaultRetryMaxDelay),
	)
	if err != nil {
		library.Close()
		return nil, err
	}
	return NewClient(library, archive, cfg.Catalog.RankingSeed, logger), nil
}

// Close releases the library handle.
func (c *Client) Close() error {
	return c.library.Close()
}

// Library exposes the underlying metadata library.
func (c *Client) Library() *Library {
	return c.library
}

// FindCandidates returns up to limit shuffled items smaller than maxByteSize
// whose identifiers are not in exclude.
func (c *Client) FindCandidates(ctx context.Context, exclude map[string]struct{}, limit int, maxByteSize int64) ([]Item, error) {
	eligible, err := c.library.Eligible(ctx, maxByteSize)
	if err != nil {
		return nil, err
	}

	filtered := eligible[:0]
	for _, item := range eligible {
		if _, skip := exclude[item.Identifier]; skip {
			continue
		}
		filtered = append(filtered, item)
	}

	c.mu.Lock()
	c.rng.Shuffle(len(filtered), func(i, j int) {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	})
	c.mu.Unlock()

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	c.logger.Debug("catalog candidates selected",
		logging.Int("eligible", len(eligible)),
		logging.Int("excluded", len(exclude)),
		logging.Int("returned", len(filtered)),
	)
	return filtered, nil
}

// ResolveDownload opens the byte stream for identifier. The catalog title is
// preferred over the archive title when the library has one.
func (c *Client) ResolveDownload(ctx context.Context, identifier string) (*Download, error) {
	dl, err := c.archive.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if item, lookupErr := c.library.Lookup(ctx, identifier); lookupErr == nil && item.Title != "" {
		dl.Title = item.Title
	}
	return dl, nil
}
