package ipc

import (
	"reel/internal/content"
	"reel/internal/deps"
	"reel/internal/rotation"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// RotationStatus mirrors the rotation engine status.
type RotationStatus = rotation.Status

// StoreStats mirrors the content store measurements.
type StoreStats = content.Stats

// HeldItem mirrors one content index row.
type HeldItem = content.HeldItem

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = deps.Status

// StatusResponse represents combined daemon, rotation, and storage status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	SessionID    string             `json:"session_id"`
	Rotation     RotationStatus     `json:"rotation"`
	Storage      StoreStats         `json:"storage"`
	StorageError string             `json:"storage_error"`
	RunError     string             `json:"run_error"`
	LockPath     string             `json:"lock_path"`
	LogPath      string             `json:"log_path"`
	StatePath    string             `json:"state_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// SwapRequest asks for UpNext to be promoted on the next cycle.
type SwapRequest struct{}

// SwapResponse reports whether the request was accepted.
type SwapResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// ResumeRequest clears a rotation halt.
type ResumeRequest struct{}

// ResumeResponse reports the resume outcome.
type ResumeResponse struct {
	Resumed bool   `json:"resumed"`
	Message string `json:"message"`
}

// ReclaimRequest evicts retained items until the budget is satisfied.
type ReclaimRequest struct{}

// ReclaimResponse lists the evicted identifiers.
type ReclaimResponse struct {
	Evicted []string `json:"evicted"`
}

// EvictRequest removes one retained item.
type EvictRequest struct {
	Identifier string `json:"identifier"`
}

// EvictResponse reports the eviction.
type EvictResponse struct {
	Evicted bool `json:"evicted"`
}

// StoreListRequest lists held items.
type StoreListRequest struct{}

// StoreListResponse contains held items in eviction order.
type StoreListResponse struct {
	Items []HeldItem `json:"items"`
}

// StoreStatsRequest measures the content store.
type StoreStatsRequest struct{}

// StoreStatsResponse carries the store measurements.
type StoreStatsResponse struct {
	Stats StoreStats `json:"stats"`
}

// ReconcileRequest drops index rows whose files vanished.
type ReconcileRequest struct{}

// ReconcileResponse lists the dropped identifiers.
type ReconcileResponse struct {
	Dropped []string `json:"dropped"`
}
