package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podmill/internal/logging"
	"podmill/internal/textutil"
)

// SweepResult reports the outcome of a staging sweep.
type SweepResult struct {
	Removed []string
	Errors  []SweepError
}

// SweepError pairs a directory path with the error that prevented its removal.
type SweepError struct {
	Path  string
	Error error
}

// CleanStale removes staging directories whose contents have not been touched
// for longer than maxAge. It covers workdirs left behind by crashed runs,
// including synchronous ones, so it applies to every directory under the root.
func CleanStale(ctx context.Context, root string, maxAge time.Duration, logger *slog.Logger) SweepResult {
	var result SweepResult

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, SweepError{Path: filepath.Join(root, entry.Name()), Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		removeDir(&result, filepath.Join(root, entry.Name()), "stale", logger,
			logging.Duration("age", time.Since(info.ModTime())))
	}

	return result
}

// CleanOrphaned removes job staging directories that no longer correspond to
// an active job. Directories for synchronous runs (the "run-" prefix) are
// skipped; those are removed by the run itself, with CleanStale as backstop.
func CleanOrphaned(ctx context.Context, root string, activeJobs map[string]struct{}, logger *slog.Logger) SweepResult {
	var result SweepResult

	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, SweepError{Path: root, Error: err})
		}
		return result
	}

	// Workdir sanitizes job IDs before they become directory names, so the
	// active set has to be normalized the same way before matching.
	active := make(map[string]struct{}, len(activeJobs))
	for id := range activeJobs {
		active[textutil.SanitizeToken(id)] = struct{}{}
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "run-") {
			continue
		}
		if _, ok := active[textutil.SanitizeToken(name)]; ok {
			continue
		}
		removeDir(&result, filepath.Join(root, name), "orphaned", logger)
	}

	return result
}

func removeDir(result *SweepResult, path, kind string, logger *slog.Logger, extra ...any) {
	if err := os.RemoveAll(path); err != nil {
		result.Errors = append(result.Errors, SweepError{Path: path, Error: err})
		if logger != nil {
			logger.Warn("failed to remove "+kind+" staging directory",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check staging directory permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
		}
		return
	}
	result.Removed = append(result.Removed, path)
	if logger != nil {
		args := []any{
			logging.String("path", path),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		}
		args = append(args, extra...)
		logger.Info("removed "+kind+" staging directory", args...)
	}
}

// DirInfo describes one staging directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns every directory under the staging root with its
// modification time and recursive size. A missing or empty root yields nil.
func ListDirectories(root string) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(root, entry.Name())
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    dirSize(path),
		})
	}
	return dirs, nil
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
