// Package textutil normalises catalog titles and derives filesystem-safe
// names for held content.
package textutil
