package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyRequestTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ContentDir, err = expandPath(c.Paths.ContentDir); err != nil {
		return fmt.Errorf("paths.content_dir: %w", err)
	}
	if c.Paths.PlaybackFile, err = expandPath(c.Paths.PlaybackFile); err != nil {
		return fmt.Errorf("paths.playback_file: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.APISocket) == "" {
		c.Paths.APISocket = filepath.Join(c.Paths.StateDir, "reel.sock")
	}
	if c.Paths.APISocket, err = expandPath(c.Paths.APISocket); err != nil {
		return fmt.Errorf("paths.api_socket: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	if value, ok := os.LookupEnv("REEL_CATALOG_DB"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.DBPath = value
	}
	if value, ok := os.LookupEnv("REEL_ARCHIVE_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.ArchiveBaseURL = value
	}

	var err error
	if c.Catalog.DBPath, err = expandPath(strings.TrimSpace(c.Catalog.DBPath)); err != nil {
		return fmt.Errorf("catalog.db_path: %w", err)
	}
	c.Catalog.MediaType = strings.TrimSpace(c.Catalog.MediaType)
	c.Catalog.ArchiveBaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.ArchiveBaseURL), "/")

	exts := make([]string, 0, len(c.Catalog.FileExtensions))
	seen := make(map[string]struct{}, len(c.Catalog.FileExtensions))
	for _, ext := range c.Catalog.FileExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	c.Catalog.FileExtensions = exts
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
