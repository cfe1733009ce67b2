package tempstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/shared/id"
	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// SweepOrphans deletes "<prefix>_<ULID>" entries directly under the temp root
// that are older than maxAge and not registered with this service. They are
// left behind by processes that exited without running their shutdown hooks.
// It returns the number of entries removed.
func (s *Service) SweepOrphans(ctx context.Context, maxAge time.Duration) (int, error) {
	matches, err := doublestar.Glob(os.DirFS(s.cfg.Root), s.cfg.Prefix+id.Separator+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to list temp root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	swept := 0
	var errs error

	for _, name := range matches {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		created, ok := id.PrefixedTimestamp(name, s.cfg.Prefix)
		if !ok || !created.Before(cutoff) {
			continue
		}

		path := filepath.Join(s.cfg.Root, name)
		if s.owns(path) {
			continue
		}

		if s.sweepLimiter != nil {
			if err := s.sweepLimiter.Wait(ctx); err != nil {
				errs = multierr.Append(errs, err)
				break
			}
		}

		if err := s.deleteRecursive(path); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		swept++
		s.logger.Debug("Swept orphaned temp item",
			zap.String("path", path), zap.Time("created", created))
	}

	s.metrics.RecordOrphansSwept(swept)
	if swept > 0 {
		s.logger.Info("Swept orphaned temp items", zap.Int("count", swept))
	}
	return swept, errs
}

// owns reports whether path is, or contains, something this service tracks.
func (s *Service) owns(path string) bool {
	dir := path + string(filepath.Separator)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, it := range s.items {
		if key == path || it.path == path || strings.HasPrefix(key, dir) || strings.HasPrefix(it.path, dir) {
			return true
		}
	}
	return false
}
