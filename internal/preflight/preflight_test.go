package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/catalog"
	"reel/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckArchive_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("unexpected method %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckArchive(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckArchive_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckArchive(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckArchive_MissingURL(t *testing.T) {
	result := CheckArchive(context.Background(), " ")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media_library.db")
	testsupport.CreateLibrary(t, path,
		catalog.Item{Identifier: "a", Title: "A", ByteSize: 10, MediaType: "movies"},
		catalog.Item{Identifier: "b", Title: "B", ByteSize: 10, MediaType: "audio"},
	)

	result := CheckLibrary(context.Background(), path, "movies")
	if !result.Passed || !strings.Contains(result.Detail, "1 movies items") {
		t.Fatalf("unexpected result %+v", result)
	}
	if result := CheckLibrary(context.Background(), path, "texts"); result.Passed {
		t.Fatal("expected failure when no items match the media type")
	}
	if result := CheckLibrary(context.Background(), filepath.Join(t.TempDir(), "absent.db"), "movies"); result.Passed {
		t.Fatal("expected failure for missing library")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("free", dir, 0); !result.Passed {
		t.Fatalf("expected pass with no reserve, got %s", result.Detail)
	}
	if result := CheckFreeSpace("free", dir, 1<<62); result.Passed {
		t.Fatal("expected failure with an impossible reserve")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil, true)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.CreateLibrary(t, cfg.Catalog.DBPath,
		catalog.Item{Identifier: "a", Title: "A", ByteSize: 10, MediaType: cfg.Catalog.MediaType},
	)

	results := RunAll(context.Background(), cfg, true)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %+v", failed)
	}
}

func TestRunAll_IncludesArchiveWhenNetworkAllowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Catalog.ArchiveBaseURL = srv.URL

	results := RunAll(context.Background(), cfg, false)
	found := false
	for _, r := range results {
		if r.Name == "Archive" {
			found = true
			if !r.Passed {
				t.Errorf("Archive check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected Archive check in results")
	}
}
