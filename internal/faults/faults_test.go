package faults_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"reel/internal/faults"
)

func TestWrapPreservesMarkerAndCause(t *testing.T) {
	err := faults.Wrap(faults.ErrDownloadFailed, "content", "admit", "short read", io.ErrUnexpectedEOF)
	if !errors.Is(err, faults.ErrDownloadFailed) {
		t.Fatalf("expected marker, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "content: admit: short read") {
		t.Fatalf("unexpected message: %q", err)
	}
	if faults.Kind(err) != "download_failed" {
		t.Fatalf("unexpected kind: %q", faults.Kind(err))
	}
}

func TestWrapWithoutCause(t *testing.T) {
	err := faults.Wrap(faults.ErrNextNotReady, "swap", "", "", nil)
	if err.Error() != "next item not ready: swap" {
		t.Fatalf("unexpected message: %q", err)
	}
	if !faults.Transient(err) {
		t.Fatal("expected next-not-ready to be transient")
	}
	if faults.Transient(faults.Wrap(faults.ErrRenameFailed, "swap", "", "", nil)) {
		t.Fatal("rename failures are not transient")
	}
}
