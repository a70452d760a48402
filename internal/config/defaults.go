package config

const (
	defaultContentDir                = "~/.local/share/reel/content"
	defaultPlaybackFile              = "~/.local/share/reel/live/current_stream.mp4"
	defaultStateDir                  = "~/.local/share/reel/state"
	defaultLogDir                    = "~/.local/share/reel/logs"
	defaultCatalogDB                 = "~/.local/share/reel/media_library.db"
	defaultCatalogMediaType          = "movies"
	defaultArchiveBaseURL            = "https://archive.org"
	defaultCandidateLimit            = 20
	defaultCatalogRequestTimeout     = 30
	defaultCatalogRetryAttempts      = 4
	defaultMaxStorageBudgetBytes     = 40 << 30
	defaultMinFreeReserveBytes       = 10 << 30
	defaultMaxItemSizeBytes          = 10 << 30
	defaultPrefetchThresholdFraction = 0.75
	defaultSwapLeadSeconds           = 2.0
	defaultMonitorIntervalSeconds    = 10
	defaultHistoryRetentionCount     = 100
	defaultHistoryCap                = 200
	defaultDownloadTimeout           = 7200
	defaultInitRetryAttempts         = 8
	defaultMaxRenameFailures         = 3
	defaultFFprobeBinary             = "ffprobe"
	defaultNtfyRequestTimeout        = 10
	defaultLogFormat                 = "console"
	defaultLogLevel                  = "info"
	defaultLogRetentionDays          = 30
)

var defaultFileExtensions = []string{".mp4"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ContentDir:   defaultContentDir,
			PlaybackFile: defaultPlaybackFile,
			StateDir:     defaultStateDir,
			LogDir:       defaultLogDir,
		},
		Catalog: Catalog{
			DBPath:         defaultCatalogDB,
			MediaType:      defaultCatalogMediaType,
			ArchiveBaseURL: defaultArchiveBaseURL,
			FileExtensions: append([]string(nil), defaultFileExtensions...),
			CandidateLimit: defaultCandidateLimit,
			RequestTimeout: defaultCatalogRequestTimeout,
			RetryAttempts:  defaultCatalogRetryAttempts,
		},
		Storage: Storage{
			MaxStorageBudgetBytes: defaultMaxStorageBudgetBytes,
			MinFreeReserveBytes:   defaultMinFreeReserveBytes,
			MaxItemSizeBytes:      defaultMaxItemSizeBytes,
		},
		Rotation: Rotation{
			PrefetchThresholdFraction: defaultPrefetchThresholdFraction,
			SwapLeadSeconds:           defaultSwapLeadSeconds,
			MonitorIntervalSeconds:    defaultMonitorIntervalSeconds,
			HistoryRetentionCount:     defaultHistoryRetentionCount,
			HistoryCap:                defaultHistoryCap,
			DownloadTimeout:           defaultDownloadTimeout,
			InitRetryAttempts:         defaultInitRetryAttempts,
			MaxRenameFailures:         defaultMaxRenameFailures,
			EvictOnRetire:             true,
		},
		Media: Media{
			FFprobeBinary: defaultFFprobeBinary,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
			NowPlaying:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
