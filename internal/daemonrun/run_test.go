package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestEnsureCurrentLogPointer(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "reel-1.log")
	second := filepath.Join(dir, "reel-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "reel.log"))
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "reel-2.log" {
		t.Fatalf("pointer resolves to %q, want the latest log", data)
	}

	if err := ensureCurrentLogPointer("", second); err != nil {
		t.Fatalf("empty dir should be a no-op: %v", err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reel.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Fatalf("unexpected pid file contents %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("blank path should be a no-op: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(t.Context(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
