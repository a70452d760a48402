package rotation

import (
	"context"
	"time"

	"reel/internal/logging"
)

// Run initializes the engine and polls it every MonitorInterval, or sooner
// when a prefetch finishes or a swap is requested, until ctx is done. The
// engine is closed on return.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.Close(); err != nil {
			e.logger.Warn("close rotation engine", logging.Error(err))
		}
	}()

	if err := e.Initialize(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logging.ErrorWithContext(e.logger, "rotation initialize failed", "initialize_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog.db_path and network access to catalog.archive_base_url"),
		)
		return err
	}

	interval := e.settings.MonitorInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("rotation loop started",
		logging.Event("rotation_started"),
		logging.Duration("interval", interval),
	)
	for {
		if err := e.Poll(ctx); err != nil && ctx.Err() == nil {
			e.logger.Debug("poll cycle reported", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("rotation loop stopping", logging.Event("rotation_stopping"))
			return nil
		case <-ticker.C:
		case <-e.wake:
		}
	}
}
