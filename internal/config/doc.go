// Package config loads, normalizes, and validates reel configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// REEL_CATALOG_DB, optionally sourced from a .env file next to the config.
// Storage limits, rotation timing, and catalog endpoints are resolved in one
// pass so the daemon and CLI agree on every knob.
package config
