// Package swap exchanges the file at the fixed playback path for a staged
// successor.
//
// The previous content stays reachable at a transient path until the
// successor has been renamed over the fixed path, so the fixed path always
// resolves to a complete file and readers holding the old descriptor keep
// reading the old content.
package swap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reel/internal/faults"
	"reel/internal/fileutil"
	"reel/internal/logging"
)

// TransientSuffix is appended to the fixed path while a swap is in progress.
const TransientSuffix = ".swap"

// Executor performs swaps. The zero value is not usable; call New.
type Executor struct {
	logger *slog.Logger
	rename func(oldpath, newpath string) error
	link   func(oldpath, newpath string) error
}

// Option configures an Executor.
type Option func(*Executor)

// WithRename replaces os.Rename.
func WithRename(fn func(oldpath, newpath string) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.rename = fn
		}
	}
}

// WithLink replaces os.Link.
func WithLink(fn func(oldpath, newpath string) error) Option {
	return func(e *Executor) {
		if fn != nil {
			e.link = fn
		}
	}
}

// New returns an Executor.
func New(logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger: logging.NewComponentLogger(logger, "swap"),
		rename: os.Rename,
		link:   os.Link,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Swap moves nextPath over currentPath. It fails with ErrNextNotReady when
// nextPath is missing, not a regular file, or empty, and with ErrRenameFailed
// when the exchange itself fails. After a failure currentPath holds the
// previous content.
func (e *Executor) Swap(currentPath, nextPath string) error {
	info, err := os.Stat(nextPath)
	switch {
	case err != nil:
		return faults.Wrap(faults.ErrNextNotReady, "swap", "verify next", nextPath, err)
	case !info.Mode().IsRegular():
		return faults.Wrap(faults.ErrNextNotReady, "swap", "verify next", nextPath+" is not a regular file", nil)
	case info.Size() == 0:
		return faults.Wrap(faults.ErrNextNotReady, "swap", "verify next", nextPath+" is empty", nil)
	}

	transient := currentPath + TransientSuffix
	if err := os.Remove(transient); err != nil && !errors.Is(err, os.ErrNotExist) {
		return faults.Wrap(faults.ErrRenameFailed, "swap", "clear transient", transient, err)
	}
	hadCurrent, err := e.preserve(currentPath, transient)
	if err != nil {
		return faults.Wrap(faults.ErrRenameFailed, "swap", "preserve current", currentPath, err)
	}

	if err := e.rename(nextPath, currentPath); err != nil {
		restoreErr := e.restore(currentPath, transient, hadCurrent)
		logging.ErrorWithContext(e.logger, "swap rename failed", "swap_rename_failed",
			logging.String("current", currentPath),
			logging.String("next", nextPath),
			logging.Error(err),
			logging.Bool("restored", restoreErr == nil),
			logging.String(logging.FieldErrorHint, "check permissions and free space on the playback directory"),
			logging.String(logging.FieldImpact, "previous item keeps playing"),
		)
		if restoreErr != nil {
			return faults.Wrap(faults.ErrRenameFailed, "swap", "rename", nextPath, errors.Join(err, restoreErr))
		}
		return faults.Wrap(faults.ErrRenameFailed, "swap", "rename", nextPath, err)
	}

	if hadCurrent {
		if err := os.Remove(transient); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("remove transient file failed", logging.String("path", transient), logging.Error(err))
		}
	}
	if err := fileutil.SyncDir(filepath.Dir(currentPath)); err != nil {
		e.logger.Debug("sync playback dir failed", logging.Error(err))
	}
	e.logger.Info("playback file swapped",
		logging.Event("swap_complete"),
		logging.String("path", currentPath),
		logging.Int64("bytes", info.Size()),
	)
	return nil
}

// preserve keeps currentPath's content reachable at transient. It reports
// false when there is no current file yet.
func (e *Executor) preserve(currentPath, transient string) (bool, error) {
	if _, err := os.Lstat(currentPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := e.link(currentPath, transient); err == nil {
		return true, nil
	}
	if err := fileutil.CopyFile(currentPath, transient); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Executor) restore(currentPath, transient string, hadCurrent bool) error {
	if !hadCurrent {
		return nil
	}
	if _, err := os.Stat(currentPath); err == nil {
		_ = os.Remove(transient)
		return nil
	}
	if err := e.rename(transient, currentPath); err != nil {
		return fmt.Errorf("restore %s from %s: %w", currentPath, transient, err)
	}
	return nil
}
