// Package ipc serves the daemon's control surface as JSON-RPC on a unix
// socket and provides the client the CLI dials.
//
// The service is registered as "Reel". Refusals the operator should read,
// such as a swap while nothing plays or rotation is halted, come back as
// response messages. Faults the CLI cannot act on come back as RPC errors.
package ipc
