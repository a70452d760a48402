package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"reel/internal/budget"
	"reel/internal/catalog"
	"reel/internal/faults"
	"reel/internal/fileutil"
	"reel/internal/logging"
	"reel/internal/media/tags"
	"reel/internal/textutil"
)

// Admit downloads item into the content directory and indexes it. The budget
// is checked against a fresh snapshot plus bytes reserved by other in-flight
// admissions. The temp file is removed on every failure path.
func (s *Store) Admit(ctx context.Context, item catalog.Item) (HeldItem, error) {
	identifier := strings.TrimSpace(item.Identifier)
	if identifier == "" {
		return HeldItem{}, faults.Wrap(faults.ErrValidation, "content", "admit", "empty identifier", nil)
	}
	item.Identifier = identifier

	if err := s.reserve(ctx, item); err != nil {
		return HeldItem{}, err
	}
	published := false
	defer func() {
		if !published {
			s.release(identifier)
		}
	}()

	logger := s.logger.With(logging.Identifier(identifier))
	started := time.Now()
	logger.Info("download started",
		logging.Event("download_started"),
		logging.Int64("declared_bytes", item.ByteSize),
	)

	dl, err := s.source.ResolveDownload(ctx, identifier)
	if err != nil {
		return HeldItem{}, err
	}
	defer dl.Close()

	tmpPath, written, err := s.download(ctx, dl, item.ByteSize)
	if err != nil {
		logging.WarnWithContext(logger, "download failed", "download_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the next monitor cycle retries with another candidate"),
		)
		return HeldItem{}, err
	}
	defer func() {
		if !published {
			_ = os.Remove(tmpPath)
		}
	}()

	title := s.resolveTitle(dl, item, tmpPath)
	ext := strings.ToLower(filepath.Ext(dl.FileName))
	if ext == "" {
		ext = ".mp4"
	}
	finalPath := filepath.Join(s.contentDir, textutil.LocalFileName(identifier, title, ext))

	duration, probeErr := s.probe.Duration(ctx, tmpPath)
	if probeErr != nil {
		logger.Warn("duration probe failed; treating duration as unknown",
			logging.Error(probeErr),
			logging.String(logging.FieldEventType, "duration_probe_failed"),
			logging.String(logging.FieldErrorHint, "verify ffprobe is installed"),
		)
		duration = 0
	}

	held := HeldItem{
		Item:            item,
		DurationSeconds: duration,
		LocalPath:       finalPath,
		DownloadedAt:    s.now().UTC(),
	}
	held.Title = title
	held.ByteSize = written

	if err := s.publish(ctx, tmpPath, held); err != nil {
		return HeldItem{}, err
	}
	published = true

	logger.Info("download complete",
		logging.Event("download_complete"),
		logging.String("path", finalPath),
		logging.Int64("bytes", written),
		logging.Float64("duration_seconds", duration),
		logging.Duration("elapsed", time.Since(started)),
	)
	return held, nil
}

// reserve claims identifier for an in-flight admission after the duplicate
// and budget checks.
func (s *Store) reserve(ctx context.Context, item catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[item.Identifier]; busy {
		return faults.Wrap(faults.ErrDuplicateIdentifier, "content", "admit", item.Identifier+" already downloading", nil)
	}
	existing, err := s.Get(ctx, item.Identifier)
	if err != nil {
		return err
	}
	if existing != nil {
		return faults.Wrap(faults.ErrDuplicateIdentifier, "content", "admit", item.Identifier+" already held", nil)
	}
	if !s.limits.Sized(item.ByteSize) {
		return faults.Wrap(faults.ErrInsufficientBudget, "content", "admit",
			fmt.Sprintf("%s: %d bytes exceeds item limit %d", item.Identifier, item.ByteSize, s.limits.MaxItemSize), nil)
	}
	snap, err := s.snapshotLocked(ctx)
	if err != nil {
		return err
	}
	if !s.limits.Admits(snap, item.ByteSize) {
		return faults.Wrap(faults.ErrInsufficientBudget, "content", "admit",
			fmt.Sprintf("%s: %d bytes with %d held and %d free", item.Identifier, item.ByteSize, snap.HeldBytes, snap.FreeBytes), nil)
	}
	s.inflight[item.Identifier] = item.ByteSize
	return nil
}

func (s *Store) release(identifier string) {
	s.mu.Lock()
	delete(s.inflight, identifier)
	s.mu.Unlock()
}

// snapshotLocked measures storage and counts in-flight reservations as held.
// Callers hold s.mu.
func (s *Store) snapshotLocked(ctx context.Context) (budget.Snapshot, error) {
	snap, err := s.tracker.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	for _, reserved := range s.inflight {
		snap.HeldBytes += reserved
	}
	return snap, nil
}

// download streams dl into a temp file and verifies its length against the
// resolved file's declared size, or fallback when the source declares none.
// Writes stop one byte past the expected size so oversize streams are
// detected without reading them to the end.
func (s *Store) download(ctx context.Context, dl *catalog.Download, fallback int64) (string, int64, error) {
	identifier := dl.Identifier
	tmpPath := filepath.Join(s.contentDir, partialPrefix+uuid.NewString())
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, s.writeFailure(identifier, "create temp file", err)
	}

	expected := dl.DeclaredSize
	if expected <= 0 {
		expected = fallback
	}
	var reader io.Reader = &contextReader{ctx: ctx, r: dl.Body}
	if expected > 0 {
		reader = io.LimitReader(reader, expected+1)
	}

	written, copyErr := io.Copy(file, reader)
	if copyErr == nil {
		copyErr = file.Sync()
	}
	if closeErr := file.Close(); copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		switch {
		case written == 0:
			copyErr = errors.New("empty download")
		case expected > 0 && written != expected:
			copyErr = fmt.Errorf("size mismatch: expected %d bytes, received %d", expected, written)
		}
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return "", 0, s.writeFailure(identifier, "stream", copyErr)
	}
	return tmpPath, written, nil
}

func (s *Store) writeFailure(identifier, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.ErrDownloadFailed, "content", op, identifier, err)
	}
	if errors.Is(err, unix.ENOSPC) {
		err = faults.Wrap(faults.ErrOutOfSpace, "content", op, s.contentDir, err)
	}
	return faults.Wrap(faults.ErrDownloadFailed, "content", op, identifier, err)
}

func (s *Store) resolveTitle(dl *catalog.Download, item catalog.Item, tmpPath string) string {
	for _, candidate := range []string{dl.Title, item.Title, tags.Title(tmpPath)} {
		if title := textutil.CleanTitle(candidate); title != "" {
			return title
		}
	}
	return textutil.TitleFromIdentifier(item.Identifier)
}

// publish moves the verified file into place and records it.
func (s *Store) publish(ctx context.Context, tmpPath string, held HeldItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmpPath, held.LocalPath); err != nil {
		return s.writeFailure(held.Identifier, "publish", err)
	}
	if err := fileutil.SyncDir(s.contentDir); err != nil {
		s.logger.Debug("sync content dir failed", logging.Error(err))
	}
	if err := s.insert(ctx, held); err != nil {
		_ = os.Remove(held.LocalPath)
		return fmt.Errorf("index %s: %w", held.Identifier, err)
	}
	delete(s.inflight, held.Identifier)
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
