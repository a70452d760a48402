// Package catalog finds playable items and resolves their byte streams.
//
// Candidates come from a local sqlite metadata library (the `media` table
// produced by the catalog scraper); downloads are resolved against the
// archive metadata/download HTTP API. Candidate ordering is a shuffle driven
// by an injectable seed so tests and operators can reproduce a rotation.
package catalog
