package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"reel/internal/ipc"
	"reel/internal/preflight"
	"reel/internal/rotation"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func rotationStateKind(state rotation.State) statusKind {
	switch state {
	case rotation.StatePlaying, rotation.StatePlayingNextReady:
		return statusOK
	case rotation.StateIdle:
		return statusWarn
	case rotation.StateHalted, rotation.StateStopped:
		return statusError
	default:
		return statusInfo
	}
}

func rotationLines(status ipc.RotationStatus, colorize bool) []string {
	lines := []string{renderStatusLine("State", rotationStateKind(status.State), string(status.State), colorize)}

	if now := status.NowPlaying; now != nil {
		lines = append(lines, renderStatusLine("Now playing", statusOK, slotLabel(now), colorize))
		lines = append(lines, renderStatusLine("Progress", statusInfo, progressLabel(status), colorize))
	} else {
		lines = append(lines, renderStatusLine("Now playing", statusWarn, "nothing bound", colorize))
	}

	switch {
	case status.UpNext != nil:
		lines = append(lines, renderStatusLine("Up next", statusOK, slotLabel(status.UpNext), colorize))
	case status.PrefetchInFlight:
		target := status.PrefetchIdentifier
		if target == "" {
			target = "choosing candidate"
		}
		lines = append(lines, renderStatusLine("Up next", statusInfo, fmt.Sprintf("prefetching %s (task %s)", target, shortTaskID(status.PrefetchTaskID)), colorize))
	default:
		lines = append(lines, renderStatusLine("Up next", statusInfo, "not yet prefetched", colorize))
	}

	if status.SwapRequested {
		lines = append(lines, renderStatusLine("Swap", statusInfo, "requested", colorize))
	}
	lines = append(lines, renderStatusLine("Played", statusInfo, fmt.Sprintf("%s items (%d in history)", humanize.Comma(int64(status.TotalPlayed)), status.HistoryLength), colorize))
	if status.ConsecutiveRenameFailures > 0 {
		lines = append(lines, renderStatusLine("Rename failures", statusWarn, fmt.Sprintf("%d consecutive", status.ConsecutiveRenameFailures), colorize))
	}
	if status.LastError != "" {
		kind := statusWarn
		if status.State == rotation.StateHalted {
			kind = statusError
		}
		lines = append(lines, renderStatusLine("Last error", kind, status.LastError, colorize))
	}
	return lines
}

func slotLabel(binding *rotation.SlotBinding) string {
	title := strings.TrimSpace(binding.Title)
	if title == "" || title == binding.Identifier {
		return binding.Identifier
	}
	return fmt.Sprintf("%s (%s)", title, binding.Identifier)
}

func progressLabel(status ipc.RotationStatus) string {
	elapsed := formatSeconds(status.ElapsedSeconds)
	if status.NowPlaying == nil || status.NowPlaying.DurationSeconds <= 0 {
		return elapsed + " elapsed, duration unknown (swap on request)"
	}
	return fmt.Sprintf("%s / %s (%.0f%%), %s remaining",
		elapsed, formatSeconds(status.NowPlaying.DurationSeconds), status.Progress*100, formatSeconds(status.RemainingSeconds))
}

func formatSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func shortTaskID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func storageLines(stats ipc.StoreStats, colorize bool) []string {
	held := uint64(max(stats.HeldBytes, 0))
	budget := uint64(max(stats.Limits.MaxStorageBudget, 0))
	kind := statusOK
	if stats.HeldBytes >= stats.Limits.MaxStorageBudget {
		kind = statusWarn
	}
	lines := []string{
		renderStatusLine("Held", kind, fmt.Sprintf("%s of %s budget (%d items)", humanize.IBytes(held), humanize.IBytes(budget), stats.HeldCount), colorize),
	}

	freeKind := statusOK
	if stats.FreeBytes <= stats.Limits.MinFreeReserve {
		freeKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Free space", freeKind,
		fmt.Sprintf("%s free, %s reserved", humanize.IBytes(uint64(max(stats.FreeBytes, 0))), humanize.IBytes(uint64(max(stats.Limits.MinFreeReserve, 0)))), colorize))
	lines = append(lines, renderStatusLine("Max item", statusInfo, humanize.IBytes(uint64(max(stats.Limits.MaxItemSize, 0))), colorize))
	if len(stats.InFlight) > 0 {
		lines = append(lines, renderStatusLine("Downloading", statusInfo, strings.Join(stats.InFlight, ", "), colorize))
	}
	return lines
}

func dependencyLines(deps []ipc.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return lines
}
