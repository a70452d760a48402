// Package logging builds the slog loggers used across reel.
//
// New selects between a compact console handler and a JSON handler, fanning
// out to stdout and per-run log files. The attribute helpers and the Field*
// keys keep event names, identifiers, and hints consistent so daemon logs can
// be filtered by component, slot, or catalog identifier.
package logging
