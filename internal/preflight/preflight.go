package preflight

import (
	"context"
	"path/filepath"

	"reel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the preflight checks for the given config. The archive
// check is skipped when skipNetwork is set.
func RunAll(ctx context.Context, cfg *config.Config, skipNetwork bool) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Content directory", cfg.Paths.ContentDir),
		CheckDirectoryAccess("Playback directory", filepath.Dir(cfg.Paths.PlaybackFile)),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Free space", cfg.Paths.ContentDir, cfg.Storage.MinFreeReserveBytes),
		CheckLibrary(ctx, cfg.Catalog.DBPath, cfg.Catalog.MediaType),
	}

	if !skipNetwork {
		results = append(results, CheckArchive(ctx, cfg.Catalog.ArchiveBaseURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
