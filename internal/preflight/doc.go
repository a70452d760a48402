// Package preflight provides readiness checks for the filesystem paths,
// catalog sources, and external binaries reel depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs every failure before the
//     rotation engine begins, so misconfiguration is visible early.
//   - The CLI "reel status" command reuses the individual checks to display
//     health when the daemon is not running.
package preflight
