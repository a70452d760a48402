package swap_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"reel/internal/faults"
	"reel/internal/logging"
	"reel/internal/swap"
	"reel/internal/testsupport"
)

func TestSwapReplacesContent(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current_stream.mp4")
	next := filepath.Join(dir, "next_current_stream.mp4")
	testsupport.WriteFile(t, current, 4096, 1)
	testsupport.WriteFile(t, next, 2048, 2)
	wantHash := testsupport.FileHash(t, next)

	if err := swap.New(logging.NewNop()).Swap(current, next); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if got := testsupport.FileHash(t, current); got != wantHash {
		t.Fatalf("fixed path hash %s, want %s", got, wantHash)
	}
	if _, err := os.Stat(next); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging file should be consumed: %v", err)
	}
	if _, err := os.Stat(current + swap.TransientSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("transient file left behind: %v", err)
	}
}

func TestSwapWithoutCurrent(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current_stream.mp4")
	next := filepath.Join(dir, "next.mp4")
	testsupport.WriteFile(t, next, 100, 3)
	if err := swap.New(nil).Swap(current, next); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if testsupport.FileSize(t, current) != 100 {
		t.Fatal("fixed path not populated")
	}
}

func TestSwapNextNotReady(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current.mp4")
	testsupport.WriteFile(t, current, 64, 1)
	hash := testsupport.FileHash(t, current)
	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	executor := swap.New(logging.NewNop())

	for _, next := range []string{filepath.Join(dir, "missing.mp4"), empty, dir} {
		if err := executor.Swap(current, next); !errors.Is(err, faults.ErrNextNotReady) {
			t.Fatalf("Swap(%s): expected ErrNextNotReady, got %v", next, err)
		}
	}
	if testsupport.FileHash(t, current) != hash {
		t.Fatal("current content changed after rejected swap")
	}
}

func TestSwapRenameFailureRestoresCurrent(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current.mp4")
	next := filepath.Join(dir, "next.mp4")
	testsupport.WriteFile(t, current, 512, 1)
	testsupport.WriteFile(t, next, 256, 2)
	hash := testsupport.FileHash(t, current)

	boom := errors.New("rename refused")
	failing := func(oldpath, newpath string) error {
		if oldpath == next {
			// Simulate a platform that unlinks the destination before failing.
			_ = os.Remove(newpath)
			return boom
		}
		return os.Rename(oldpath, newpath)
	}
	err := swap.New(logging.NewNop(), swap.WithRename(failing)).Swap(current, next)
	if !errors.Is(err, faults.ErrRenameFailed) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrRenameFailed wrapping cause, got %v", err)
	}
	if testsupport.FileHash(t, current) != hash {
		t.Fatal("current content not restored")
	}
	if testsupport.FileSize(t, next) != 256 {
		t.Fatal("staged file should remain for a retry")
	}
}

func TestSwapFallsBackToCopyWhenLinkFails(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current.mp4")
	next := filepath.Join(dir, "next.mp4")
	testsupport.WriteFile(t, current, 300, 1)
	testsupport.WriteFile(t, next, 200, 2)
	noLink := func(string, string) error { return errors.New("links unsupported") }
	if err := swap.New(nil, swap.WithLink(noLink)).Swap(current, next); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if testsupport.FileSize(t, current) != 200 {
		t.Fatal("swap did not complete")
	}
}

func TestFixedPathNeverAbsentDuringSwaps(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current.mp4")
	next := filepath.Join(dir, "next.mp4")
	testsupport.WriteFile(t, current, 2048, 1)
	executor := swap.New(logging.NewNop())

	var missing atomic.Int64
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			f, err := os.Open(current)
			if err != nil {
				missing.Add(1)
				continue
			}
			info, statErr := f.Stat()
			if statErr != nil || info.Size() == 0 {
				missing.Add(1)
			}
			f.Close()
		}
	}()

	for i := 0; i < 200; i++ {
		testsupport.WriteFile(t, next, int64(1024+i), byte(i))
		if err := executor.Swap(current, next); err != nil {
			close(stop)
			wg.Wait()
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()
	if n := missing.Load(); n != 0 {
		t.Fatalf("fixed path was unreadable %d times", n)
	}
}

func TestOpenDescriptorKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "current.mp4")
	next := filepath.Join(dir, "next.mp4")
	testsupport.WriteFile(t, current, 128, 1)
	testsupport.WriteFile(t, next, 64, 2)
	old := testsupport.Payload(128, 1)

	reader, err := os.Open(current)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if err := swap.New(nil).Swap(current, next); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	buf := make([]byte, 128)
	if _, err := reader.ReadAt(buf, 0); err != nil {
		t.Fatalf("read old descriptor: %v", err)
	}
	if string(buf) != string(old) {
		t.Fatal("open descriptor observed new content")
	}
}
