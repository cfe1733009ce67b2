package tempstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// deleteRecursive removes path and, for a directory, everything below it,
// deepest entries first. A single failure is logged and does not stop the
// remaining deletions. A missing path is not an error.
func (s *Service) deleteRecursive(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return s.deleteFailed(path, err)
	}

	if !info.IsDir() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return s.deleteFailed(path, err)
		}
		return nil
	}

	entries, errs := s.collect(path)

	// Children before parents.
	sort.Slice(entries, func(i, j int) bool {
		di, dj := depth(entries[i]), depth(entries[j])
		if di != dj {
			return di > dj
		}
		return entries[i] > entries[j]
	})

	for _, p := range entries {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = multierr.Append(errs, s.deleteFailed(p, err))
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierr.Append(errs, s.deleteFailed(path, err))
	}
	return errs
}

// collect lists every entry below root without following symlinks.
func (s *Service) collect(root string) ([]string, error) {
	var (
		mu      sync.Mutex
		entries []string
		errs    error
	)

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			mu.Lock()
			errs = multierr.Append(errs, s.deleteFailed(p, err))
			mu.Unlock()
			return nil
		}
		if filepath.Clean(p) == root {
			return nil
		}

		mu.Lock()
		entries = append(entries, p)
		mu.Unlock()
		return nil
	})
	if walkErr != nil {
		errs = multierr.Append(errs, s.deleteFailed(root, walkErr))
	}

	return entries, errs
}

func (s *Service) deleteFailed(path string, err error) error {
	s.metrics.RecordDeleteFailure()
	s.logger.Warn("Could not delete", zap.String("path", path), zap.Error(err))
	return fmt.Errorf("delete %s: %w", path, err)
}

func depth(p string) int {
	return strings.Count(filepath.Clean(p), string(filepath.Separator))
}
