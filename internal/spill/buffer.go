package spill

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

const (
	// DefaultHeapLimit is the largest payload kept in memory.
	DefaultHeapLimit int64 = 8 * 1024 * 1024
	// DefaultInitialHeapSize is the initial capacity of the memory tier.
	DefaultInitialHeapSize = 4 * 1024

	// Extension is given to spill files.
	Extension = ".spill"

	fileBufferSize = 32 * 1024
)

var (
	ErrClosed    = errors.New("spill buffer is closed")
	ErrNotClosed = errors.New("spill buffer is still open")
	ErrDisposed  = errors.New("spill buffer is disposed")
)

// FileAllocator hands out the temp file a buffer spills into and deletes it
// again on Dispose. *tempstore.Service satisfies it.
type FileAllocator interface {
	CreateTempFile(extension string) (string, error)
	CleanUp(path string) error
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithHeapLimit sets the in-memory ceiling. Negative values keep the default.
func WithHeapLimit(n int64) Option {
	return func(b *Buffer) {
		if n >= 0 {
			b.heapLimit = n
		}
	}
}

// WithInitialHeapSize sets the initial memory capacity. Negative values keep
// the default.
func WithInitialHeapSize(n int) Option {
	return func(b *Buffer) {
		if n >= 0 {
			b.initialSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Buffer) {
		b.logger = logging.OrNop(l).Named("spill")
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(b *Buffer) {
		b.metrics = m
	}
}

// Buffer is a write-once byte sink that keeps small payloads in memory and
// moves to a temp file the first time the payload would exceed the heap
// limit. It never moves back. Once closed, any number of independent readers
// can replay the full content.
type Buffer struct {
	store       FileAllocator
	heapLimit   int64
	initialSize int
	logger      *logging.Logger
	metrics     *monitoring.Metrics

	mu       sync.Mutex
	mem      *bytes.Buffer
	file     *os.File
	w        *bufio.Writer
	path     string
	size     int64
	closed   bool
	disposed bool
}

// New creates an empty, memory-backed buffer.
func New(store FileAllocator, opts ...Option) *Buffer {
	b := &Buffer{
		store:       store,
		heapLimit:   DefaultHeapLimit,
		initialSize: DefaultInitialHeapSize,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.mem = bytes.NewBuffer(make([]byte, 0, b.initialSize))
	return b
}

// Write appends p, migrating to the file tier first if p would push the
// buffer past its heap limit.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	if b.file == nil && b.size+int64(len(p)) > b.heapLimit {
		if err := b.migrate(); err != nil {
			return 0, err
		}
	}

	if b.file == nil {
		n, _ := b.mem.Write(p)
		b.size += int64(n)
		b.metrics.RecordSpillWrite("memory", n)
		return n, nil
	}

	n, err := b.w.Write(p)
	b.size += int64(n)
	b.metrics.RecordSpillWrite("file", n)
	if err != nil {
		return n, fmt.Errorf("failed to write spill file: %w", err)
	}
	return n, nil
}

// migrate moves the memory tier into a fresh temp file. On failure the
// buffer stays memory-backed and the partial file is removed.
func (b *Buffer) migrate() error {
	if b.store == nil {
		return errors.New("spill buffer has no file allocator")
	}

	path, err := b.store.CreateTempFile(Extension)
	if err != nil {
		return fmt.Errorf("failed to allocate spill file: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		b.discard(path)
		return fmt.Errorf("failed to open spill file: %w", err)
	}

	w := bufio.NewWriterSize(file, fileBufferSize)
	if _, err := w.Write(b.mem.Bytes()); err != nil {
		file.Close()
		b.discard(path)
		return fmt.Errorf("failed to copy memory tier to spill file: %w", err)
	}

	b.logger.Debug("Spilled to file",
		zap.String("path", path),
		zap.Int64("size", b.size),
		zap.Int64("heap_limit", b.heapLimit))

	b.file = file
	b.w = w
	b.path = path
	b.mem = nil
	b.metrics.RecordSpillMigration()
	return nil
}

func (b *Buffer) discard(path string) {
	if err := b.store.CleanUp(path); err != nil {
		b.logger.Warn("Failed to clean up partial spill file",
			zap.String("path", path), zap.Error(err))
	}
}

// Flush pushes buffered file-tier bytes to the OS.
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.w == nil {
		return nil
	}
	if err := b.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill file: %w", err)
	}
	return nil
}

// Close seals the buffer. The spill file, if any, is kept for readers.
// Closing twice is a no-op.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.close()
}

func (b *Buffer) close() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.file == nil {
		return nil
	}

	flushErr := b.w.Flush()
	closeErr := b.file.Close()
	b.w = nil
	b.file = nil

	if flushErr != nil {
		return fmt.Errorf("failed to flush spill file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close spill file: %w", closeErr)
	}
	return nil
}

// Reader returns a new reader over the complete content. Each call starts
// from the beginning. The buffer must be closed first.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.disposed:
		return nil, ErrDisposed
	case !b.closed:
		return nil, ErrNotClosed
	case b.path == "":
		return io.NopCloser(bytes.NewReader(b.mem.Bytes())), nil
	}

	f, err := os.Open(b.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}
	return f, nil
}

// Bytes reads the complete content into memory.
func (b *Buffer) Bytes() ([]byte, error) {
	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// WriteTo copies the complete content to w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	r, err := b.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return io.Copy(w, r)
}

// Dispose closes the buffer, drops the memory tier and deletes the spill
// file. Readers obtained earlier must be closed first; Dispose does not
// track them. Disposing twice is a no-op.
func (b *Buffer) Dispose() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return nil
	}
	b.disposed = true

	err := b.close()
	b.mem = nil

	if b.path != "" {
		if cerr := b.store.CleanUp(b.path); cerr != nil {
			b.logger.Warn("Failed to delete spill file",
				zap.String("path", b.path), zap.Error(cerr))
			if err == nil {
				err = cerr
			}
		}
	}
	return err
}

// Size returns the number of bytes written.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// OnDisk reports whether the buffer has migrated to a file.
func (b *Buffer) OnDisk() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path != ""
}

// Path returns the spill file path, or "" while memory-backed.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}
