// Package fileutil holds the small filesystem primitives shared by the
// content store and rotation state: atomic writes, verified copies, and
// hard-link placement.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a sibling temp file, syncs it, and renames
// it over path so readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return SyncDir(filepath.Dir(path))
}

// SyncDir flushes directory metadata so a preceding rename survives a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems reject fsync on directories; the rename already happened.
	_ = d.Sync()
	return nil
}

// CopyFile copies src into dst through a temp file and rename, verifying the
// byte count against the source.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	written, err := io.Copy(out, in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && written != info.Size() {
		err = fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// LinkOrCopy places src at dst, replacing anything already there. A hard
// link is used when possible so no extra space is consumed; otherwise the
// file is copied. It reports whether a link was made.
func LinkOrCopy(src, dst string) (bool, error) {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale %s: %w", dst, err)
	}
	if err := os.Link(src, dst); err == nil {
		return true, nil
	}
	if err := CopyFile(src, dst); err != nil {
		return false, err
	}
	return false, nil
}
