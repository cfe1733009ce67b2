package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pumpBufferSize = 32 * 1024

// stream is one child output channel and the sink it drains into.
type stream struct {
	name string
	src  *os.File
	sink io.Writer
}

// pumps drains a child's output streams until end of stream or
// cancellation.
type pumps struct {
	group   *errgroup.Group
	stop    func() bool
	closeFn func()
}

// startPumps starts one goroutine per stream. Cancelling ctx, or any pump
// failing, closes every source so blocked reads return.
func startPumps(ctx context.Context, r *Runner, streams []stream) *pumps {
	group, gctx := errgroup.WithContext(ctx)

	var once sync.Once
	closeAll := func() {
		once.Do(func() {
			for _, s := range streams {
				s.src.Close()
			}
		})
	}

	for _, s := range streams {
		s := s
		group.Go(func() error {
			return r.pump(gctx, s)
		})
	}

	return &pumps{
		group:   group,
		stop:    context.AfterFunc(gctx, closeAll),
		closeFn: closeAll,
	}
}

// Wait joins every pump and releases the sources.
func (p *pumps) Wait() error {
	err := p.group.Wait()
	p.stop()
	p.closeFn()
	return err
}

func (r *Runner) pump(ctx context.Context, s stream) error {
	buf := make([]byte, pumpBufferSize)
	var total int64
	defer func() {
		r.metrics.RecordPumped(s.name, total)
	}()

	for {
		n, readErr := s.src.Read(buf)
		if n > 0 {
			written, err := s.sink.Write(buf[:n])
			total += int64(written)
			if err != nil {
				return fmt.Errorf("%s sink: %w", s.name, err)
			}
			if written < n {
				return fmt.Errorf("%s sink: %w", s.name, io.ErrShortWrite)
			}
		}

		if readErr == nil {
			continue
		}
		if endOfStream(readErr) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s pump: %w", s.name, readErr)
	}

	if f, ok := s.sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%s sink flush: %w", s.name, err)
		}
	}

	r.logger.Debug("Stream drained", zap.String("stream", s.name), zap.Int64("bytes", total))
	return nil
}

// endOfStream reports whether err marks the normal end of a child stream.
// A pty master returns EIO once the child side is closed.
func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, syscall.EIO)
}
