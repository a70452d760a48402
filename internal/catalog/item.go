package catalog

import (
	"context"
	"io"
)

// Item is a catalog entry eligible for rotation.
type Item struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	ByteSize   int64  `json:"byte_size"`
	MediaType  string `json:"mediatype,omitempty"`
	Year       int    `json:"year,omitempty"`
	Downloads  int64  `json:"downloads,omitempty"`
}

// Download is an open byte stream for one catalog item. Callers must Close Body.
type Download struct {
	Identifier   string
	Title        string
	FileName     string
	DeclaredSize int64
	Body         io.ReadCloser
}

// Close releases the underlying stream.
func (d *Download) Close() error {
	if d == nil || d.Body == nil {
		return nil
	}
	return d.Body.Close()
}

// Source is the catalog contract consumed by the content store.
type Source interface {
	FindCandidates(ctx context.Context, exclude map[string]struct{}, limit int, maxByteSize int64) ([]Item, error)
	ResolveDownload(ctx context.Context, identifier string) (*Download, error)
}
