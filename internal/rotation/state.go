package rotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"reel/internal/fileutil"
)

// State labels the engine's position in the rotation cycle.
type State string

const (
	StateIdle             State = "idle"
	StatePlaying          State = "playing"
	StatePlayingNextReady State = "playing_next_ready"
	StateHalted           State = "halted"
	StateStopped          State = "stopped"
)

const stateFileVersion = 1

// SlotBinding ties a playback slot to a held item.
type SlotBinding struct {
	Identifier      string    `json:"identifier"`
	Title           string    `json:"title"`
	DurationSeconds float64   `json:"duration_seconds"`
	BoundAt         time.Time `json:"bound_at"`
	// StartedAt is set for NowPlaying only.
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func (b *SlotBinding) clone() *SlotBinding {
	if b == nil {
		return nil
	}
	out := *b
	if b.StartedAt != nil {
		started := *b.StartedAt
		out.StartedAt = &started
	}
	return &out
}

// PersistedState is the durable record written after every transition.
type PersistedState struct {
	Version                   int          `json:"version"`
	NowPlaying                *SlotBinding `json:"now_playing,omitempty"`
	UpNext                    *SlotBinding `json:"up_next,omitempty"`
	History                   []string     `json:"history"`
	TotalPlayed               int          `json:"total_played"`
	Halted                    bool         `json:"halted"`
	ConsecutiveRenameFailures int          `json:"consecutive_rename_failures"`
	LastError                 string       `json:"last_error,omitempty"`
	UpdatedAt                 time.Time    `json:"updated_at"`
}

// LoadState reads the state file. A missing file yields an empty state and
// no error.
func LoadState(path string) (PersistedState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return PersistedState{Version: stateFileVersion}, nil
	}
	if err != nil {
		return PersistedState{}, fmt.Errorf("read state file: %w", err)
	}
	var state PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return PersistedState{}, fmt.Errorf("decode state file %s: %w", path, err)
	}
	if state.Version != stateFileVersion {
		return PersistedState{}, fmt.Errorf("state file %s has version %d, expected %d", path, state.Version, stateFileVersion)
	}
	return state, nil
}

// SaveState writes state atomically.
func SaveState(path string, state PersistedState) error {
	state.Version = stateFileVersion
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// appendHistory records identifier and prunes to the newest retain entries
// once the history grows past limit.
func appendHistory(history []string, identifier string, retain, limit int) []string {
	history = append(history, identifier)
	if limit > 0 && len(history) > limit {
		if retain <= 0 || retain > limit {
			retain = limit
		}
		history = append([]string(nil), history[len(history)-retain:]...)
	}
	return history
}

func historySet(history []string) map[string]struct{} {
	set := make(map[string]struct{}, len(history))
	for _, id := range history {
		set[id] = struct{}{}
	}
	return set
}
