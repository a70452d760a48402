package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"reel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Storage limits default to a 10 KiB budget with no free-space reserve so
// tests can reason in small byte units.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ContentDir = filepath.Join(base, "content")
	cfgVal.Paths.PlaybackFile = filepath.Join(base, "live", "current_stream.mp4")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APISocket = filepath.Join(base, "state", "reel.sock")
	cfgVal.Catalog.DBPath = filepath.Join(base, "media_library.db")
	cfgVal.Catalog.RankingSeed = 42
	cfgVal.Storage = config.Storage{
		MaxStorageBudgetBytes: 10 * 1024,
		MinFreeReserveBytes:   0,
		MaxItemSizeBytes:      4 * 1024,
	}
	cfgVal.Rotation.MonitorIntervalSeconds = 1

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfgVal}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithStorage overrides the storage limits.
func WithStorage(budget, reserve, maxItem int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage = config.Storage{
			MaxStorageBudgetBytes: budget,
			MinFreeReserveBytes:   reserve,
			MaxItemSizeBytes:      maxItem,
		}
	}
}

// WithRotation applies fn to the rotation section.
func WithRotation(fn func(*config.Rotation)) ConfigOption {
	return func(b *configBuilder) {
		fn(&b.cfg.Rotation)
	}
}

// WithStubbedFFprobe writes an ffprobe stand-in reporting durationSeconds for
// every file and points the config at it.
func WithStubbedFFprobe(durationSeconds string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin: %v", err)
		}
		script := "#!/bin/sh\necho '{\"streams\":[{\"codec_type\":\"video\"}],\"format\":{\"duration\":\"" + durationSeconds + "\"}}'\n"
		path := filepath.Join(binDir, "ffprobe")
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write ffprobe stub: %v", err)
		}
		b.cfg.Media.FFprobeBinary = path
	}
}
