package testsupport

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern derived from
// seed, so files of equal size can still be told apart by hash.
func WriteFile(t testing.TB, path string, size int64, seed byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, Payload(size, seed), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Payload returns size bytes of a deterministic pattern.
func Payload(size int64, seed byte) []byte {
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i%251)
	}
	return buf
}

// FileHash returns the hex sha256 of the file at path.
func FileHash(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileSize returns the size of path, failing the test when it is missing.
func FileSize(t testing.TB, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Size()
}
