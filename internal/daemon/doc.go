// Package daemon coordinates the long-running reel process.
//
// It wires configuration, the content store, and the rotation engine into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon runs the engine's monitor loop and the content directory
// watcher, and exposes the administrative operations (swap, resume,
// reclaim, evict) the IPC server forwards.
//
// Keep orchestration logic here: rotation decisions belong to the rotation
// package and storage accounting to the content package, while the daemon
// focuses on startup, shutdown, and high level coordination.
package daemon
