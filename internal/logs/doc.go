// Package logs reads the daemon log file for `reel logs`.
//
// Tail returns the last N lines or everything after a byte offset, and in
// follow mode blocks until new lines arrive, the wait elapses, or the context
// ends. Memory stays bounded by the requested line count.
package logs
