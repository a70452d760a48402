package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantContent := filepath.Join(tempHome, ".local", "share", "reel", "content")
	if cfg.Paths.ContentDir != wantContent {
		t.Fatalf("unexpected content dir: got %q want %q", cfg.Paths.ContentDir, wantContent)
	}
	if cfg.Paths.APISocket != filepath.Join(cfg.Paths.StateDir, "reel.sock") {
		t.Fatalf("unexpected api socket: %q", cfg.Paths.APISocket)
	}
	if cfg.Rotation.PrefetchThresholdFraction != 0.75 {
		t.Fatalf("unexpected prefetch threshold: %v", cfg.Rotation.PrefetchThresholdFraction)
	}
	if cfg.SwapLead().Seconds() != 2 {
		t.Fatalf("unexpected swap lead: %v", cfg.SwapLead())
	}
	if got := cfg.StagingFile(); filepath.Base(got) != "next_current_stream.mp4" {
		t.Fatalf("unexpected staging file: %q", got)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.ContentDir, cfg.Paths.StateDir, cfg.Paths.LogDir, filepath.Dir(cfg.Paths.PlaybackFile)} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")

	type payload struct {
		Storage struct {
			MaxStorageBudgetBytes int64 `toml:"max_storage_budget_bytes"`
			MaxItemSizeBytes      int64 `toml:"max_item_size_bytes"`
		} `toml:"storage"`
		Rotation struct {
			MonitorIntervalSeconds int `toml:"monitor_interval_seconds"`
		} `toml:"rotation"`
		Catalog struct {
			FileExtensions []string `toml:"file_extensions"`
		} `toml:"catalog"`
	}
	custom := payload{}
	custom.Storage.MaxStorageBudgetBytes = 1000
	custom.Storage.MaxItemSizeBytes = 400
	custom.Rotation.MonitorIntervalSeconds = 30
	custom.Catalog.FileExtensions = []string{"MP4", ".ogv", ".mp4"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.MaxStorageBudgetBytes != 1000 || cfg.Storage.MaxItemSizeBytes != 400 {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.MonitorInterval().Seconds() != 30 {
		t.Fatalf("expected monitor interval 30s, got %v", cfg.MonitorInterval())
	}
	if strings.Join(cfg.Catalog.FileExtensions, ",") != ".mp4,.ogv" {
		t.Fatalf("unexpected extensions: %v", cfg.Catalog.FileExtensions)
	}
}

func TestDotEnvSuppliesCatalogLocation(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reel.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	dbPath := filepath.Join(tempDir, "library.db")
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte("REEL_CATALOG_DB="+dbPath+"\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("REEL_CATALOG_DB", "")
	os.Unsetenv("REEL_CATALOG_DB")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.DBPath != dbPath {
		t.Fatalf("expected catalog db from .env, got %q", cfg.Catalog.DBPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.ContentDir, "reel") {
		t.Fatalf("expected content dir to contain reel, got %q", cfg.Paths.ContentDir)
	}
	if cfg.Storage.MaxStorageBudgetBytes != config.Default().Storage.MaxStorageBudgetBytes {
		t.Fatalf("sample budget drifted from defaults: %d", cfg.Storage.MaxStorageBudgetBytes)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"threshold zero":        func(c *config.Config) { c.Rotation.PrefetchThresholdFraction = 0 },
		"threshold one":         func(c *config.Config) { c.Rotation.PrefetchThresholdFraction = 1 },
		"negative swap lead":    func(c *config.Config) { c.Rotation.SwapLeadSeconds = -1 },
		"monitor interval":      func(c *config.Config) { c.Rotation.MonitorIntervalSeconds = 0 },
		"history cap too small": func(c *config.Config) { c.Rotation.HistoryCap = c.Rotation.HistoryRetentionCount - 1 },
		"item exceeds budget":   func(c *config.Config) { c.Storage.MaxItemSizeBytes = c.Storage.MaxStorageBudgetBytes },
		"zero budget":           func(c *config.Config) { c.Storage.MaxStorageBudgetBytes = 0 },
		"negative reserve":      func(c *config.Config) { c.Storage.MinFreeReserveBytes = -1 },
		"no extensions":         func(c *config.Config) { c.Catalog.FileExtensions = nil },
		"bad archive url":       func(c *config.Config) { c.Catalog.ArchiveBaseURL = "archive.org" },
		"bad log format":        func(c *config.Config) { c.Logging.Format = "xml" },
		"bare ntfy topic":       func(c *config.Config) { c.Notifications.NtfyTopic = "my-reel" },
		"playback in content": func(c *config.Config) {
			c.Paths.PlaybackFile = filepath.Join(c.Paths.ContentDir, "current.mp4")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.ContentDir = "/srv/reel/content"
			cfg.Paths.PlaybackFile = "/srv/reel/live/current.mp4"
			cfg.Paths.StateDir = "/srv/reel/state"
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
