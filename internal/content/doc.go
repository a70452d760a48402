// Package content owns every held media file and the sqlite index that
// records them.
//
// The Store admits downloads under the storage budget, evicts them in
// oldest-download order, stages held files next to the fixed playback path,
// and keeps the index consistent with the content directory when files are
// removed behind its back. Other components refer to held items only by
// identifier.
package content
