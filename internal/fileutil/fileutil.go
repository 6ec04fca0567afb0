package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// syncFile is replaced in tests to simulate a failing flush.
var syncFile = func(f *os.File) error { return f.Sync() }

// WriteAtomic streams content into tmpPath, flushes it to disk, and renames it
// onto path. Readers of path see either the previous file or the complete new
// one. On any failure tmpPath is removed and path is left untouched.
func WriteAtomic(path, tmpPath string, mode os.FileMode, write func(io.Writer) error) (err error) {
	if filepath.Dir(filepath.Clean(path)) != filepath.Dir(filepath.Clean(tmpPath)) {
		return fmt.Errorf("temp file %s is not in the directory of %s", tmpPath, path)
	}
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(out); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := syncFile(out); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(path, tmpPath string, data []byte, mode os.FileMode) error {
	return WriteAtomic(path, tmpPath, mode, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
