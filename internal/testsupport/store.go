package testsupport

import (
	"context"
	"testing"

	"reel/internal/catalog"
	"reel/internal/config"
	"reel/internal/content"
	"reel/internal/logging"
)

// FixedDuration is a content.Prober reporting the same duration for every file.
type FixedDuration float64

func (d FixedDuration) Duration(context.Context, string) (float64, error) { return float64(d), nil }

// PlentyOfSpace reports a filesystem far larger than any test budget.
func PlentyOfSpace(string) (uint64, uint64, error) {
	return 1 << 40, 1 << 39, nil
}

// MustOpenStore opens a content.Store over source for tests and registers
// cleanup. Durations probe as durationSeconds and free space is unbounded.
func MustOpenStore(t testing.TB, cfg *config.Config, source catalog.Source, durationSeconds float64) *content.Store {
	t.Helper()

	store, err := content.Open(cfg, source, logging.NewNop(),
		content.WithProber(FixedDuration(durationSeconds)),
		content.WithStatfs(PlentyOfSpace),
	)
	if err != nil {
		t.Fatalf("content.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
