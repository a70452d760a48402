// Package notifications pushes rotation events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers publish unconditionally. Events cover swaps, halts, and fatal
// daemon errors.
package notifications
