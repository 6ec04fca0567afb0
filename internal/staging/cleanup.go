package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"detectd/internal/fileutil"
	"detectd/internal/logging"
)

// CleanupResult contains the outcome of a cleanup pass.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanLeftovers removes temp files that an interrupted publish left on disk.
// The caller must hold the daemon lock; otherwise it could remove another
// instance's in-flight staging file.
func CleanLeftovers(paths []string, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || !fileutil.Exists(path) {
			continue
		}
		if err := fileutil.RemoveIfExists(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove publish leftover",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check permissions on the output directory"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed publish leftover",
				logging.String("path", path),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}
	return result
}

// CleanStale removes directories under dir whose name starts with prefix and
// whose modification time is older than maxAge.
func CleanStale(ctx context.Context, dir, prefix string, maxAge time.Duration, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale scratch directory",
					logging.String("path", dirPath),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		if logger != nil {
			logger.Info("removed stale scratch directory",
				logging.String("path", dirPath),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}
