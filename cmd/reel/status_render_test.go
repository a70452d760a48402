package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"reel/internal/ipc"
	"reel/internal/rotation"
)

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "Running", false)
	if !strings.Contains(line, "Daemon:") || !strings.HasSuffix(line, "[OK] Running") {
		t.Fatalf("unexpected line %q", line)
	}
	colored := renderStatusLine("Daemon", statusError, "", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
	if !strings.Contains(colored, "[ERROR]") {
		t.Fatalf("expected ERROR label, got %q", colored)
	}
}

func TestDependencyLines(t *testing.T) {
	lines := dependencyLines([]ipc.DependencyStatus{
		{Name: "FFprobe", Command: "ffprobe", Available: true, Version: "ffprobe version 7.1"},
		{Name: "Optional", Command: "opt", Optional: true, Detail: "binary \"opt\" not found"},
		{Name: "Required", Command: "req"},
	}, false)

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "[OK] Ready (ffprobe version 7.1)") {
		t.Fatalf("unexpected ready line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN]") {
		t.Fatalf("optional dependency should warn, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR] not available") {
		t.Fatalf("required dependency should error, got %q", lines[2])
	}
	if !strings.Contains(lines[3], "Missing dependencies") || !strings.Contains(lines[3], "Optional, Required") {
		t.Fatalf("unexpected summary %q", lines[3])
	}
}

func TestRotationLines(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	status := ipc.RotationStatus{
		State: rotation.StatePlayingNextReady,
		NowPlaying: &rotation.SlotBinding{
			Identifier:      "night",
			Title:           "Night of the Living Dead",
			DurationSeconds: 5760,
			StartedAt:       &started,
		},
		UpNext:           &rotation.SlotBinding{Identifier: "metropolis", Title: "metropolis"},
		ElapsedSeconds:   90,
		RemainingSeconds: 5670,
		Progress:         90.0 / 5760.0,
		TotalPlayed:      1200,
		HistoryLength:    100,
	}
	out := strings.Join(rotationLines(status, false), "\n")
	requireContains(t, out, "[OK] playing_next_ready")
	requireContains(t, out, "Night of the Living Dead (night)")
	requireContains(t, out, "1:30 / 1:36:00 (2%), 1:34:30 remaining")
	requireContains(t, out, "Up next:")
	requireContains(t, out, "[OK] metropolis")
	requireContains(t, out, "1,200 items (100 in history)")

	idle := strings.Join(rotationLines(ipc.RotationStatus{
		State:              rotation.StateIdle,
		PrefetchInFlight:   true,
		PrefetchIdentifier: "nosferatu",
		PrefetchTaskID:     "0123456789abcdef",
	}, false), "\n")
	requireContains(t, idle, "nothing bound")
	requireContains(t, idle, "prefetching nosferatu (task 01234567)")

	halted := strings.Join(rotationLines(ipc.RotationStatus{
		State:     rotation.StateHalted,
		LastError: "rename failed",
	}, false), "\n")
	requireContains(t, halted, "[ERROR] rename failed")
}

func TestProgressLabelUnknownDuration(t *testing.T) {
	label := progressLabel(ipc.RotationStatus{
		NowPlaying:     &rotation.SlotBinding{Identifier: "x"},
		ElapsedSeconds: 5,
	})
	if label != "0:05 elapsed, duration unknown (swap on request)" {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[float64]string{
		-3:     "0:00",
		0:      "0:00",
		59.9:   "0:59",
		61:     "1:01",
		3600:   "1:00:00",
		5025.4: "1:23:45",
	}
	for in, want := range cases {
		if got := formatSeconds(in); got != want {
			t.Errorf("formatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestStorageLinesWarnsAtBudget(t *testing.T) {
	var stats ipc.StoreStats
	stats.HeldBytes = 2048
	stats.HeldCount = 2
	stats.FreeBytes = 1 << 30
	stats.Limits.MaxStorageBudget = 2048
	stats.Limits.MaxItemSize = 1024
	stats.InFlight = []string{"nosferatu"}

	out := strings.Join(storageLines(stats, false), "\n")
	requireContains(t, out, "[WARN] 2.0 KiB of 2.0 KiB budget (2 items)")
	requireContains(t, out, "Downloading:")
	requireContains(t, out, "nosferatu")
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writers to disable color")
	}
}
