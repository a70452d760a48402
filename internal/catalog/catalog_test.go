package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"reel/internal/catalog"
	"reel/internal/faults"
	"reel/internal/logging"
	"reel/internal/testsupport"
)

func libraryFixture(t *testing.T) *catalog.Library {
	t.Helper()
	path := filepath.Join(t.TempDir(), "media_library.db")
	testsupport.CreateLibrary(t, path,
		catalog.Item{Identifier: "alpha", Title: "Alpha", ByteSize: 100, MediaType: "movies", Year: 1931, Downloads: 10},
		catalog.Item{Identifier: "bravo", Title: "Bravo", ByteSize: 200, MediaType: "movies"},
		catalog.Item{Identifier: "charlie", Title: "Charlie", ByteSize: 300, MediaType: "movies"},
		catalog.Item{Identifier: "delta", Title: "Delta", ByteSize: 400, MediaType: "movies"},
		catalog.Item{Identifier: "echo", Title: "Echo", ByteSize: 50, MediaType: "audio"},
		catalog.Item{Identifier: "zero", Title: "Zero", ByteSize: 0, MediaType: "movies"},
	)
	lib, err := catalog.OpenLibrary(path, "movies")
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func identifiers(items []catalog.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Identifier)
	}
	return out
}

func TestLibraryEligibleFiltersTypeAndSize(t *testing.T) {
	lib := libraryFixture(t)
	items, err := lib.Eligible(context.Background(), 400)
	if err != nil {
		t.Fatalf("Eligible: %v", err)
	}
	if got := strings.Join(identifiers(items), ","); got != "alpha,bravo,charlie" {
		t.Fatalf("unexpected eligible set %q", got)
	}
	if items[0].Year != 1931 || items[0].Downloads != 10 {
		t.Fatalf("expected ranking metadata, got %+v", items[0])
	}
	count, err := lib.Count(context.Background())
	if err != nil || count != 5 {
		t.Fatalf("Count = %d, %v", count, err)
	}
}

func TestOpenLibraryMissingFile(t *testing.T) {
	_, err := catalog.OpenLibrary(filepath.Join(t.TempDir(), "absent.db"), "movies")
	if !errors.Is(err, faults.ErrCatalogUnreachable) {
		t.Fatalf("expected ErrCatalogUnreachable, got %v", err)
	}
}

func TestFindCandidatesSeededAndExcluding(t *testing.T) {
	lib := libraryFixture(t)
	ctx := context.Background()
	exclude := map[string]struct{}{"bravo": {}}

	first, err := catalog.NewClient(lib, nil, 7, logging.NewNop()).FindCandidates(ctx, exclude, 10, 1000)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	second, err := catalog.NewClient(lib, nil, 7, logging.NewNop()).FindCandidates(ctx, exclude, 10, 1000)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if strings.Join(identifiers(first), ",") != strings.Join(identifiers(second), ",") {
		t.Fatalf("same seed produced different order: %v vs %v", identifiers(first), identifiers(second))
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 candidates, got %v", identifiers(first))
	}
	for _, item := range first {
		if item.Identifier == "bravo" {
			t.Fatal("excluded identifier returned")
		}
	}

	limited, err := catalog.NewClient(lib, nil, 7, logging.NewNop()).FindCandidates(ctx, nil, 2, 1000)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

type archiveFixture struct {
	metadata map[string]any
	status   int
	failures int32
	calls    atomic.Int32
	body     string
}

func (f *archiveFixture) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/metadata/"):
			if f.calls.Add(1) <= f.failures {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			if f.status != 0 {
				w.WriteHeader(f.status)
				return
			}
			_ = json.NewEncoder(w).Encode(f.metadata)
		case r.URL.Path == "/download/night/night_512kb.mp4":
			_, _ = io.WriteString(w, f.body)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newArchive(t *testing.T, fixture *archiveFixture, maxItem int64) *catalog.Archive {
	t.Helper()
	server := httptest.NewServer(fixture.handler(t))
	t.Cleanup(server.Close)
	archive, err := catalog.NewArchive(server.URL, []string{".mp4"}, maxItem, catalog.WithRetry(3, time.Millisecond, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	return archive
}

func nightMetadata() map[string]any {
	return map[string]any{
		"metadata": map[string]any{"identifier": "night", "title": "Night of the Living Dead"},
		"files": []any{
			map[string]any{"name": "night.mp4", "size": "900"},
			map[string]any{"name": "night_512kb.mp4", "size": "12"},
			map[string]any{"name": "night.ogv", "size": "5"},
			map[string]any{"name": "night.mp4.torrent", "size": 3},
		},
	}
}

func TestArchiveResolvePicksSmallestEligibleFile(t *testing.T) {
	fixture := &archiveFixture{metadata: nightMetadata(), body: "hello frames", failures: 2}
	archive := newArchive(t, fixture, 1000)

	dl, err := archive.Resolve(context.Background(), "night")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer dl.Close()
	if dl.FileName != "night_512kb.mp4" {
		t.Fatalf("unexpected file %q", dl.FileName)
	}
	if dl.DeclaredSize != 12 {
		t.Fatalf("unexpected declared size %d", dl.DeclaredSize)
	}
	if dl.Title != "Night of the Living Dead" {
		t.Fatalf("unexpected title %q", dl.Title)
	}
	data, err := io.ReadAll(dl.Body)
	if err != nil || string(data) != "hello frames" {
		t.Fatalf("unexpected body %q err=%v", data, err)
	}
	if fixture.calls.Load() != 3 {
		t.Fatalf("expected two retries before success, got %d calls", fixture.calls.Load())
	}
}

func TestArchiveResolveNoEligibleFile(t *testing.T) {
	fixture := &archiveFixture{metadata: nightMetadata()}
	archive := newArchive(t, fixture, 10)
	if _, err := archive.Resolve(context.Background(), "night"); !errors.Is(err, faults.ErrNoEligibleFile) {
		t.Fatalf("expected ErrNoEligibleFile, got %v", err)
	}
}

func TestArchiveResolveNotFound(t *testing.T) {
	empty := &archiveFixture{metadata: map[string]any{}}
	if _, err := newArchive(t, empty, 1000).Resolve(context.Background(), "gone"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty metadata, got %v", err)
	}
	missing := &archiveFixture{status: http.StatusNotFound}
	if _, err := newArchive(t, missing, 1000).Resolve(context.Background(), "gone"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
	if missing.calls.Load() != 1 {
		t.Fatalf("404 must not be retried, got %d calls", missing.calls.Load())
	}
}

func TestArchiveResolveUnreachableAfterRetries(t *testing.T) {
	fixture := &archiveFixture{failures: 100}
	_, err := newArchive(t, fixture, 1000).Resolve(context.Background(), "night")
	if !errors.Is(err, faults.ErrCatalogUnreachable) {
		t.Fatalf("expected ErrCatalogUnreachable, got %v", err)
	}
	if fixture.calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", fixture.calls.Load())
	}
}

func TestClientPrefersLibraryTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media_library.db")
	testsupport.CreateLibrary(t, path, catalog.Item{Identifier: "night", Title: "Night (1968)", ByteSize: 12, MediaType: "movies"})
	lib, err := catalog.OpenLibrary(path, "movies")
	if err != nil {
		t.Fatalf("OpenLibrary: %v", err)
	}
	defer lib.Close()

	fixture := &archiveFixture{metadata: nightMetadata(), body: "hello frames"}
	client := catalog.NewClient(lib, newArchive(t, fixture, 1000), 1, logging.NewNop())
	dl, err := client.ResolveDownload(context.Background(), "night")
	if err != nil {
		t.Fatalf("ResolveDownload: %v", err)
	}
	defer dl.Close()
	if dl.Title != "Night (1968)" {
		t.Fatalf("expected library title, got %q", dl.Title)
	}
}
