// Package tags reads embedded container metadata (MP4 atoms, ID3, Vorbis
// comments) from downloaded media.
package tags

import (
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// Title returns the embedded title of the file at path, or "" when the
// container carries none or cannot be parsed.
func Title(path string) string {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(meta.Title())
}
