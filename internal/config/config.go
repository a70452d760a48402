package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the content, playback, and state locations.
type Paths struct {
	ContentDir   string `toml:"content_dir"`
	PlaybackFile string `toml:"playback_file"`
	StateDir     string `toml:"state_dir"`
	LogDir       string `toml:"log_dir"`
	APISocket    string `toml:"api_socket"`
}

// Catalog contains the metadata library and archive endpoints.
type Catalog struct {
	DBPath         string   `toml:"db_path"`
	MediaType      string   `toml:"mediatype"`
	ArchiveBaseURL string   `toml:"archive_base_url"`
	FileExtensions []string `toml:"file_extensions"`
	CandidateLimit int      `toml:"candidate_limit"`
	RequestTimeout int      `toml:"request_timeout"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RankingSeed    int64    `toml:"ranking_seed"`
}

// Storage contains the disk budget limits enforced on admission.
type Storage struct {
	MaxStorageBudgetBytes int64 `toml:"max_storage_budget_bytes"`
	MinFreeReserveBytes   int64 `toml:"min_free_reserve_bytes"`
	MaxItemSizeBytes      int64 `toml:"max_item_size_bytes"`
}

// Rotation contains playback monitoring and swap timing.
type Rotation struct {
	PrefetchThresholdFraction float64 `toml:"prefetch_threshold_fraction"`
	SwapLeadSeconds           float64 `toml:"swap_lead_seconds"`
	MonitorIntervalSeconds    int     `toml:"monitor_interval_seconds"`
	HistoryRetentionCount     int     `toml:"history_retention_count"`
	HistoryCap                int     `toml:"history_cap"`
	DownloadTimeout           int     `toml:"download_timeout"`
	InitRetryAttempts         int     `toml:"init_retry_attempts"`
	MaxRenameFailures         int     `toml:"max_rename_failures"`
	EvictOnRetire             bool    `toml:"evict_on_retire"`
}

// Media contains external media tool settings.
type Media struct {
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Notifications contains the optional ntfy push settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	NowPlaying     bool   `toml:"now_playing"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reel.
//
// Configuration sections by subsystem:
//   - Paths: content store, fixed playback file, state and logs
//   - Catalog: metadata library and archive download endpoints
//   - Storage: disk budget enforced by the content store
//   - Rotation: prefetch and swap timing, history bounds
//   - Media: ffprobe location
//   - Notifications: ntfy alerts for swaps and halts
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Catalog       Catalog       `toml:"catalog"`
	Storage       Storage       `toml:"storage"`
	Rotation      Rotation      `toml:"rotation"`
	Media         Media         `toml:"media"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if err := loadDotEnv(filepath.Dir(resolvedPath)); err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv applies a .env file beside the config without overriding
// variables already present in the environment.
func loadDotEnv(dir string) error {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.ContentDir,
		filepath.Dir(c.Paths.PlaybackFile),
		c.Paths.StateDir,
		c.Paths.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StagingFile returns the path the next item is linked into before a swap.
func (c *Config) StagingFile() string {
	dir, base := filepath.Split(c.Paths.PlaybackFile)
	return filepath.Join(dir, "next_"+base)
}

// StateFile returns the persisted rotation state location.
func (c *Config) StateFile() string {
	return filepath.Join(c.Paths.StateDir, "rotation_state.json")
}

// IndexPath returns the content index database location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.StateDir, "content.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "reel.lock")
}

// SocketPath returns the admin IPC socket location.
func (c *Config) SocketPath() string {
	return c.Paths.APISocket
}

// MonitorInterval returns the rotation polling interval.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Rotation.MonitorIntervalSeconds) * time.Second
}

// DownloadTimeout bounds a single prefetch download.
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Rotation.DownloadTimeout) * time.Second
}

// CatalogRequestTimeout bounds a single catalog HTTP request.
func (c *Config) CatalogRequestTimeout() time.Duration {
	return time.Duration(c.Catalog.RequestTimeout) * time.Second
}

// SwapLead returns the remaining-time window that triggers a swap.
func (c *Config) SwapLead() time.Duration {
	return time.Duration(c.Rotation.SwapLeadSeconds * float64(time.Second))
}

// FFprobeBinary returns the ffprobe executable used for duration probing.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Media.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.Media.FFprobeBinary
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
