package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateRotation(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.ContentDir) == "" {
		return errors.New("paths.content_dir must be set")
	}
	if strings.TrimSpace(c.Paths.PlaybackFile) == "" {
		return errors.New("paths.playback_file must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if filepath.Dir(c.Paths.PlaybackFile) == filepath.Clean(c.Paths.ContentDir) {
		return errors.New("paths.playback_file must not live directly inside paths.content_dir")
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if strings.TrimSpace(c.Catalog.DBPath) == "" {
		return errors.New("catalog.db_path must be set (or REEL_CATALOG_DB)")
	}
	if c.Catalog.MediaType == "" {
		return errors.New("catalog.mediatype must be set")
	}
	if !strings.HasPrefix(c.Catalog.ArchiveBaseURL, "http://") && !strings.HasPrefix(c.Catalog.ArchiveBaseURL, "https://") {
		return fmt.Errorf("catalog.archive_base_url must be an http(s) URL, got %q", c.Catalog.ArchiveBaseURL)
	}
	if len(c.Catalog.FileExtensions) == 0 {
		return errors.New("catalog.file_extensions must include at least one extension")
	}
	return ensurePositiveMap(map[string]int{
		"catalog.candidate_limit": c.Catalog.CandidateLimit,
		"catalog.request_timeout": c.Catalog.RequestTimeout,
		"catalog.retry_attempts":  c.Catalog.RetryAttempts,
	})
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if s.MaxStorageBudgetBytes <= 0 {
		return errors.New("storage.max_storage_budget_bytes must be positive")
	}
	if s.MinFreeReserveBytes < 0 {
		return errors.New("storage.min_free_reserve_bytes must not be negative")
	}
	if s.MaxItemSizeBytes <= 0 {
		return errors.New("storage.max_item_size_bytes must be positive")
	}
	if s.MaxItemSizeBytes >= s.MaxStorageBudgetBytes {
		return errors.New("storage.max_item_size_bytes must be smaller than storage.max_storage_budget_bytes")
	}
	return nil
}

func (c *Config) validateRotation() error {
	r := c.Rotation
	if r.PrefetchThresholdFraction <= 0 || r.PrefetchThresholdFraction >= 1 {
		return errors.New("rotation.prefetch_threshold_fraction must be between 0 and 1 (exclusive)")
	}
	if r.SwapLeadSeconds < 0 {
		return errors.New("rotation.swap_lead_seconds must not be negative")
	}
	if err := ensurePositiveMap(map[string]int{
		"rotation.monitor_interval_seconds": r.MonitorIntervalSeconds,
		"rotation.history_retention_count":  r.HistoryRetentionCount,
		"rotation.history_cap":              r.HistoryCap,
		"rotation.download_timeout":         r.DownloadTimeout,
		"rotation.init_retry_attempts":      r.InitRetryAttempts,
		"rotation.max_rename_failures":      r.MaxRenameFailures,
	}); err != nil {
		return err
	}
	if r.HistoryCap < r.HistoryRetentionCount {
		return errors.New("rotation.history_cap must be at least rotation.history_retention_count")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
