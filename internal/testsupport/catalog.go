package testsupport

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"reel/internal/catalog"
	"reel/internal/faults"
)

// FakeItem is one entry served by FakeCatalog.
type FakeItem struct {
	Item    catalog.Item
	Content []byte
	// FileSize is the declared size of the resolved file when it differs
	// from Item.ByteSize, as for archive items holding several files.
	FileSize int64
	// ShortBy truncates the served stream to simulate an interrupted download.
	ShortBy int64
}

// FakeCatalog is an in-memory catalog.Source. Candidates are returned in
// insertion order so tests are deterministic.
type FakeCatalog struct {
	mu          sync.Mutex
	order       []string
	items       map[string]FakeItem
	findErr     error
	resolveErr  map[string]error
	gate        chan struct{}
	findCalls   int
	resolveLog  []string
	findExclude []map[string]struct{}
}

var _ catalog.Source = (*FakeCatalog)(nil)

// NewFakeCatalog returns an empty catalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{items: map[string]FakeItem{}, resolveErr: map[string]error{}}
}

// Add registers an item whose content is size bytes of a pattern seeded by
// the item's position.
func (f *FakeCatalog) Add(identifier string, size int64) catalog.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := catalog.Item{Identifier: identifier, Title: "Title " + identifier, ByteSize: size, MediaType: "movies"}
	f.items[identifier] = FakeItem{Item: item, Content: Payload(size, byte(len(f.order)+1))}
	f.order = append(f.order, identifier)
	return item
}

// AddFile registers an item whose catalog size is itemSize but whose
// resolved file is only fileSize bytes.
func (f *FakeCatalog) AddFile(identifier string, itemSize, fileSize int64) catalog.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := catalog.Item{Identifier: identifier, Title: "Title " + identifier, ByteSize: itemSize, MediaType: "movies"}
	f.items[identifier] = FakeItem{Item: item, Content: Payload(fileSize, byte(len(f.order)+1)), FileSize: fileSize}
	f.order = append(f.order, identifier)
	return item
}

// Truncate makes the served stream for identifier shorter than declared.
func (f *FakeCatalog) Truncate(identifier string, by int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry := f.items[identifier]
	entry.ShortBy = by
	f.items[identifier] = entry
}

// Content returns the bytes served for identifier.
func (f *FakeCatalog) Content(identifier string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[identifier].Content
}

// FailFind makes FindCandidates return err (nil clears it).
func (f *FakeCatalog) FailFind(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findErr = err
}

// FailResolve makes ResolveDownload for identifier return err.
func (f *FakeCatalog) FailResolve(identifier string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveErr[identifier] = err
}

// Gate blocks every subsequent download body until the returned release
// function is called.
func (f *FakeCatalog) Gate() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FindCalls returns how many times FindCandidates ran.
func (f *FakeCatalog) FindCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

// Resolved returns identifiers passed to ResolveDownload, in order.
func (f *FakeCatalog) Resolved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resolveLog...)
}

// LastExclude returns the exclusion set of the most recent FindCandidates call.
func (f *FakeCatalog) LastExclude() map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.findExclude) == 0 {
		return nil
	}
	return f.findExclude[len(f.findExclude)-1]
}

func (f *FakeCatalog) FindCandidates(_ context.Context, exclude map[string]struct{}, limit int, maxByteSize int64) ([]catalog.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	copied := make(map[string]struct{}, len(exclude))
	for k := range exclude {
		copied[k] = struct{}{}
	}
	f.findExclude = append(f.findExclude, copied)
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []catalog.Item
	for _, id := range f.order {
		entry := f.items[id]
		if _, skip := exclude[id]; skip {
			continue
		}
		if entry.Item.ByteSize <= 0 || entry.Item.ByteSize >= maxByteSize {
			continue
		}
		out = append(out, entry.Item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *FakeCatalog) ResolveDownload(ctx context.Context, identifier string) (*catalog.Download, error) {
	f.mu.Lock()
	f.resolveLog = append(f.resolveLog, identifier)
	if err := f.resolveErr[identifier]; err != nil {
		f.mu.Unlock()
		return nil, err
	}
	entry, ok := f.items[identifier]
	gate := f.gate
	f.mu.Unlock()
	if !ok {
		return nil, faults.Wrap(faults.ErrNotFound, "fake", "resolve", identifier, nil)
	}

	content := entry.Content
	if entry.ShortBy > 0 && entry.ShortBy <= int64(len(content)) {
		content = content[:int64(len(content))-entry.ShortBy]
	}
	declared := entry.Item.ByteSize
	if entry.FileSize > 0 {
		declared = entry.FileSize
	}
	var body io.Reader = bytes.NewReader(content)
	if gate != nil {
		body = &gatedReader{ctx: ctx, gate: gate, r: body}
	}
	return &catalog.Download{
		Identifier:   identifier,
		Title:        entry.Item.Title,
		FileName:     identifier + ".mp4",
		DeclaredSize: declared,
		Body:         io.NopCloser(body),
	}, nil
}

type gatedReader struct {
	ctx  context.Context
	gate <-chan struct{}
	r    io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	select {
	case <-g.gate:
	case <-g.ctx.Done():
		return 0, g.ctx.Err()
	}
	return g.r.Read(p)
}

// CreateLibrary writes a sqlite metadata library containing items at path.
func CreateLibrary(t testing.TB, path string, items ...catalog.Item) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open library: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS media (
		identifier TEXT PRIMARY KEY,
		title TEXT,
		creator TEXT,
		year TEXT,
		mediatype TEXT,
		item_size INTEGER,
		downloads INTEGER
	)`); err != nil {
		t.Fatalf("create media table: %v", err)
	}
	for _, item := range items {
		year := ""
		if item.Year > 0 {
			year = fmt.Sprint(item.Year)
		}
		if _, err := db.Exec(`INSERT INTO media (identifier, title, year, mediatype, item_size, downloads) VALUES (?, ?, ?, ?, ?, ?)`,
			item.Identifier, item.Title, year, item.MediaType, item.ByteSize, item.Downloads); err != nil {
			t.Fatalf("insert %s: %v", item.Identifier, err)
		}
	}
}
