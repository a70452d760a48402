package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"reel/internal/catalog"
	"reel/internal/content"
	"reel/internal/testsupport"
)

func TestStatusCommandReportsRotation(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "== Rotation ==")
	requireContains(t, out, "[OK] playing")
	requireContains(t, out, "== Storage ==")
	requireContains(t, out, "of 10 KiB budget (1 items)")
}

func TestStatusCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var payload struct {
		Running  bool `json:"running"`
		Rotation struct {
			State      string `json:"state"`
			NowPlaying *struct {
				Identifier string `json:"identifier"`
			} `json:"now_playing"`
		} `json:"rotation"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if !payload.Running || payload.Rotation.NowPlaying == nil {
		t.Fatalf("unexpected status payload %s", out)
	}
}

func TestStatusCommandOfflineWhenDaemonDown(t *testing.T) {
	env := setupCLITestEnv(t)
	bogus := filepath.Join(t.TempDir(), "absent.sock")

	out, _, err := runCLI(t, []string{"status", "--offline"}, bogus, env.configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "Not running")
	requireContains(t, out, "== System Checks ==")
	requireContains(t, out, "Content directory")
	if strings.Contains(out, "Archive:") {
		t.Fatalf("archive check should be skipped offline:\n%s", out)
	}
}

func TestSwapRefusedWhileIdle(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"swap"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "swap refused") {
		t.Fatalf("expected swap to be refused, got %v", err)
	}
}

func TestSwapAndResumeWhilePlaying(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, []string{"resume"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Rotation resumed")

	out, _, err = runCLI(t, []string{"swap"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	requireContains(t, out, "Swap requested")
}

func TestStoreCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	playing := env.daemon.Status(context.Background()).Rotation.NowPlaying.Identifier

	out, _, err := runCLI(t, []string{"store", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("store list: %v", err)
	}
	requireContains(t, out, playing)
	requireContains(t, out, "1.0 KiB")

	out, _, err = runCLI(t, []string{"store", "list", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("store list --json: %v", err)
	}
	var items []content.HeldItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode held items: %v", err)
	}
	if len(items) != 1 || items[0].Identifier != playing {
		t.Fatalf("unexpected held items %+v", items)
	}

	out, _, err = runCLI(t, []string{"store", "stats"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("store stats: %v", err)
	}
	requireContains(t, out, "1.0 KiB of 10 KiB budget (1 items)")
	requireContains(t, out, env.cfg.Paths.ContentDir)

	out, _, err = runCLI(t, []string{"store", "reconcile"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("store reconcile: %v", err)
	}
	requireContains(t, out, "Index matches disk")
}

func TestReclaimAndEvict(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	out, _, err := runCLI(t, []string{"reclaim"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	requireContains(t, out, "Nothing to reclaim")

	playing := env.daemon.Status(context.Background()).Rotation.NowPlaying.Identifier
	if _, _, err := runCLI(t, []string{"evict", playing}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected evicting the playing item to fail")
	}
	if _, _, err := runCLI(t, []string{"evict"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected evict without an identifier to fail")
	}
}

func TestCatalogSample(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.CreateLibrary(t, env.cfg.Catalog.DBPath,
		catalog.Item{Identifier: "night", Title: "Night of the Living Dead", ByteSize: 1024, MediaType: "movies", Year: 1968, Downloads: 12000},
		catalog.Item{Identifier: "huge", Title: "Too Big", ByteSize: 1 << 20, MediaType: "movies"},
		catalog.Item{Identifier: "song", Title: "A Song", ByteSize: 512, MediaType: "audio"},
	)

	out, _, err := runCLI(t, []string{"catalog", "sample"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("catalog sample: %v", err)
	}
	requireContains(t, out, "night")
	requireContains(t, out, "1968")
	requireContains(t, out, "12,000")
	if strings.Contains(out, "huge") || strings.Contains(out, "song") {
		t.Fatalf("sample included an ineligible item:\n%s", out)
	}
}

func TestLogsCommandPrintsTail(t *testing.T) {
	env := setupCLITestEnv(t)
	logDir := env.cfg.Paths.LogDir
	target := filepath.Join(logDir, "reel-20260501T200000.000Z.log")
	if err := os.WriteFile(target, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(logDir, "reel.log")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestLogsCommandWithoutLog(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"logs"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected an error when no daemon log exists")
	}
}

func TestTestNotifyPostsToTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	var title atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title.Store(r.Header.Get("Title"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify without topic: %v", err)
	}
	requireContains(t, out, "not set")

	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if got, _ := title.Load().(string); got != "Reel - Test" {
		t.Fatalf("unexpected notification title %q", got)
	}
}
