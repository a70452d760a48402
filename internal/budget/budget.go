// Package budget answers whether the content store may admit another item.
//
// Every Snapshot is computed from the filesystem at call time: free space via
// statfs on the content directory and held bytes by stat-ing each indexed
// file. Nothing is cached because external processes may delete files
// between calls.
package budget

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"reel/internal/config"
)

// Limits are the configured admission thresholds.
type Limits struct {
	MaxStorageBudget int64 `json:"max_storage_budget_bytes"`
	MinFreeReserve   int64 `json:"min_free_reserve_bytes"`
	MaxItemSize      int64 `json:"max_item_size_bytes"`
}

// LimitsFromConfig extracts the storage section.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxStorageBudget: cfg.Storage.MaxStorageBudgetBytes,
		MinFreeReserve:   cfg.Storage.MinFreeReserveBytes,
		MaxItemSize:      cfg.Storage.MaxItemSizeBytes,
	}
}

// Admits reports whether an item of candidateBytes fits: free space after the
// write must stay strictly above the reserve and held bytes strictly below
// the budget.
func (l Limits) Admits(s Snapshot, candidateBytes int64) bool {
	return s.FreeBytes-candidateBytes > l.MinFreeReserve &&
		s.HeldBytes+candidateBytes < l.MaxStorageBudget
}

// Sized reports whether a single item may ever be admitted under these limits.
func (l Limits) Sized(candidateBytes int64) bool {
	return candidateBytes > 0 && candidateBytes <= l.MaxItemSize && candidateBytes < l.MaxStorageBudget
}

// Snapshot is a point-in-time view of storage usage.
type Snapshot struct {
	FreeBytes  int64 `json:"free_bytes"`
	TotalBytes int64 `json:"total_bytes"`
	HeldBytes  int64 `json:"held_bytes"`
	HeldCount  int   `json:"held_count"`
}

// HeldFiles lists the local paths of every indexed item.
type HeldFiles interface {
	HeldPaths(ctx context.Context) ([]string, error)
}

// StatfsFunc reports filesystem capacity for the volume containing path.
type StatfsFunc func(path string) (total uint64, free uint64, err error)

// Tracker computes snapshots against Limits.
type Tracker struct {
	root   string
	limits Limits
	held   HeldFiles
	statfs StatfsFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStatfs replaces the filesystem probe.
func WithStatfs(fn StatfsFunc) Option {
	return func(t *Tracker) {
		if fn != nil {
			t.statfs = fn
		}
	}
}

// NewTracker measures the volume holding root and the files listed by held.
func NewTracker(root string, limits Limits, held HeldFiles, opts ...Option) *Tracker {
	t := &Tracker{root: root, limits: limits, held: held, statfs: realStatfs}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Limits returns the configured thresholds.
func (t *Tracker) Limits() Limits {
	return t.limits
}

// Snapshot measures free space and the on-disk size of held files. Files that
// vanished since indexing contribute nothing.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	total, free, err := t.statfs(t.root)
	if err != nil {
		return snap, fmt.Errorf("budget: statfs %s: %w", t.root, err)
	}
	snap.TotalBytes = clampInt64(total)
	snap.FreeBytes = clampInt64(free)

	if t.held == nil {
		return snap, nil
	}
	paths, err := t.held.HeldPaths(ctx)
	if err != nil {
		return snap, fmt.Errorf("budget: list held files: %w", err)
	}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return snap, fmt.Errorf("budget: stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		snap.HeldBytes += info.Size()
		snap.HeldCount++
	}
	return snap, nil
}

// CanAdmit takes a fresh snapshot and applies Limits.Admits.
func (t *Tracker) CanAdmit(ctx context.Context, candidateBytes int64) (bool, Snapshot, error) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		return false, snap, err
	}
	return t.limits.Admits(snap, candidateBytes), snap, nil
}

func clampInt64(v uint64) int64 {
	const maxInt64 = 1<<63 - 1
	if v > maxInt64 {
		return maxInt64
	}
	return int64(v)
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
