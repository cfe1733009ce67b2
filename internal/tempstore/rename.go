package tempstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// RenameOrCopy moves src to dst. The rename is retried up to the configured
// number of attempts with a fixed delay, to get past transient locks held by
// indexers or virus scanners. When every attempt fails, src is copied to dst
// and then deleted; a src that cannot be deleted is registered for clean up.
//
// src must exist and dst must not. If the copy fails, src is left in place
// and the partial dst is removed.
func (s *Service) RenameOrCopy(ctx context.Context, src, dst string) error {
	if _, err := os.Lstat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, src)
		}
		return fmt.Errorf("failed to stat rename source: %w", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrTargetExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat rename target: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.RenameAttempts; attempt++ {
		if attempt > 1 {
			s.logger.Debug("Delaying rename attempt",
				zap.Int("attempt", attempt),
				zap.String("source", src),
				zap.String("target", dst),
				zap.Duration("delay", s.cfg.RenameDelay))

			if err := sleep(ctx, s.cfg.RenameDelay); err != nil {
				s.logger.Debug("Rename delay cancelled", zap.Int("attempt", attempt))
				return fmt.Errorf("rename of %s cancelled: %w", src, err)
			}
		}

		lastErr = s.rename(src, dst)
		if lastErr == nil {
			s.metrics.RecordRename("renamed")
			s.logger.Debug("Rename succeeded",
				zap.Int("attempt", attempt), zap.String("source", src), zap.String("target", dst))
			return nil
		}

		s.logger.Debug("Rename attempt failed",
			zap.Int("attempt", attempt),
			zap.String("source", src),
			zap.String("target", dst),
			zap.Error(lastErr))
	}

	if err := copyFile(src, dst); err != nil {
		s.metrics.RecordRename("failed")
		s.logger.Error("Copy fallback failed, leaving source in place",
			zap.String("source", src), zap.String("target", dst), zap.Error(err))
		return fmt.Errorf("rename failed (%v) and copy fallback failed: %w", lastErr, err)
	}

	s.metrics.RecordRename("copied")
	s.logger.Debug("Copy fallback succeeded", zap.String("source", src), zap.String("target", dst))

	s.Delete(src)
	return nil
}

// copyFile copies a regular file's bytes and permission bits to a new dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
