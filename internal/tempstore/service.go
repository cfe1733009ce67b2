package tempstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/shutdown"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/shared/id"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultExtension is used when CreateTempFile is given no extension.
const DefaultExtension = ".tmp"

var (
	ErrSourceMissing = errors.New("rename source does not exist")
	ErrTargetExists  = errors.New("rename target already exists")
)

// Config configures a Service.
type Config struct {
	// Root is the directory temp items are created in. Empty means os.TempDir().
	Root string
	// Prefix names temp directories ("<prefix>_<ULID>") and files.
	Prefix string
	// RenameAttempts bounds RenameOrCopy's rename retries.
	RenameAttempts int
	// RenameDelay is the pause between rename attempts.
	RenameDelay time.Duration
	// SweepRate caps SweepOrphans deletions per second. Zero means no cap.
	SweepRate float64
	// Entropy feeds the random part of directory ULIDs. Nil means a
	// monotonic crypto/rand source.
	Entropy io.Reader
}

// DefaultConfig returns the standard lifecycle settings.
func DefaultConfig() Config {
	return Config{
		Prefix:         "execcore",
		RenameAttempts: 5,
		RenameDelay:    500 * time.Millisecond,
	}
}

// Hooks is where the service registers its exit-time clean up.
type Hooks interface {
	Register(name string, priority shutdown.Priority, fn func(ctx context.Context) error) error
}

// item is one path the service has committed to deleting.
type item struct {
	path   string
	serial uint64
}

// Service allocates temp files and directories and guarantees their
// eventual deletion, in creation order, on demand or at shutdown.
type Service struct {
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	ids     *id.Generator

	// rename is os.Rename, swappable in tests.
	rename func(src, dst string) error

	// sweepLimiter is nil when sweeping is unthrottled.
	sweepLimiter *rate.Limiter

	serial atomic.Uint64

	mu    sync.Mutex
	items map[string]item // keyed by the path handed to the caller
}

// New creates a temp storage service. When hooks is non-nil the service
// registers CleanUpAll as a late shutdown hook.
func New(cfg Config, logger *logging.Logger, metrics *monitoring.Metrics, hooks Hooks) (*Service, error) {
	defaults := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.RenameAttempts <= 0 {
		cfg.RenameAttempts = defaults.RenameAttempts
	}
	if cfg.RenameDelay < 0 {
		cfg.RenameDelay = defaults.RenameDelay
	}
	if cfg.Root == "" {
		cfg.Root = os.TempDir()
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve temp root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp root: %w", err)
	}
	cfg.Root = root

	s := &Service{
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("tempstore"),
		metrics: metrics,
		ids:     newIDs(cfg.Entropy),
		rename:  os.Rename,
		items:   make(map[string]item),
	}

	if cfg.SweepRate > 0 {
		s.sweepLimiter = rate.NewLimiter(rate.Limit(cfg.SweepRate), 1)
	}

	if hooks != nil {
		err := hooks.Register("tempstore.cleanup", shutdown.PriorityLate, func(context.Context) error {
			return s.CleanUpAll()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to register temp clean up hook: %w", err)
		}
	}

	return s, nil
}

// Root returns the absolute directory temp items are created in.
func (s *Service) Root() string {
	return s.cfg.Root
}

// Prefix returns the name prefix of temp directories.
func (s *Service) Prefix() string {
	return s.cfg.Prefix
}

// Len returns the number of registered clean-up items.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Registered reports whether path is currently registered.
func (s *Service) Registered(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[filepath.Clean(path)]
	return ok
}

// CreateTempFile creates an empty file inside a fresh directory under the
// temp root. The directory is what gets deleted when the returned path is
// cleaned up.
func (s *Service) CreateTempFile(extension string) (string, error) {
	dir, err := s.createDirectory()
	if err != nil {
		return "", err
	}

	file, err := s.createFile(dir, extension)
	if err != nil {
		if rmErr := os.Remove(dir); rmErr != nil {
			s.logger.Warn("Failed to remove temp directory after file creation failed",
				zap.String("path", dir), zap.Error(rmErr))
		}
		return "", err
	}

	s.register(file, dir, "file")
	s.logger.Debug("Remembered directory for clean up",
		zap.String("path", dir), zap.String("file", file))
	return file, nil
}

// CreateTempFileIn creates an empty file in dir and registers the file
// itself. An empty dir behaves like CreateTempFile.
func (s *Service) CreateTempFileIn(dir, extension string) (string, error) {
	if dir == "" {
		return s.CreateTempFile(extension)
	}

	file, err := s.createFile(dir, extension)
	if err != nil {
		return "", err
	}

	s.register(file, file, "file")
	s.logger.Debug("Remembered file for clean up", zap.String("path", file))
	return file, nil
}

// CreateTempDirectory creates a uniquely named directory under the temp root.
func (s *Service) CreateTempDirectory() (string, error) {
	dir, err := s.createDirectory()
	if err != nil {
		return "", err
	}

	s.register(dir, dir, "directory")
	s.logger.Debug("Remembered directory for clean up", zap.String("path", dir))
	return dir, nil
}

// Forget drops the registration for path without deleting anything. The
// caller becomes responsible for the path.
func (s *Service) Forget(path string) {
	key := filepath.Clean(path)

	s.mu.Lock()
	removed, ok := s.items[key]
	if ok {
		delete(s.items, key)
	}
	active := len(s.items)
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("Could not forget clean up item: not found", zap.String("path", key))
		return
	}

	s.metrics.RecordTempForgotten(active)
	s.logger.Debug("Forgot clean up item",
		zap.String("item", removed.path), zap.String("path", key))
}

// CleanUp deletes the item registered for path now. Unknown paths are a
// no-op. The registration is dropped once path no longer exists; individual
// deletion failures are logged and returned.
func (s *Service) CleanUp(path string) error {
	key := filepath.Clean(path)

	s.mu.Lock()
	it, ok := s.items[key]
	s.mu.Unlock()

	if !ok {
		s.logger.Debug("Could not clean up item: not found", zap.String("path", key))
		return nil
	}

	err := s.cleanUpItem(it)

	if _, statErr := os.Lstat(key); errors.Is(statErr, os.ErrNotExist) {
		s.mu.Lock()
		if cur, ok := s.items[key]; ok && cur.serial == it.serial {
			delete(s.items, key)
		}
		active := len(s.items)
		s.mu.Unlock()

		s.metrics.RecordTempCleaned(active)
	}

	return err
}

// CleanUpAll deletes every registered item in creation order and clears the
// registry. It is safe to call repeatedly.
func (s *Service) CleanUpAll() error {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return nil
	}
	items := make([]item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	s.items = make(map[string]item)
	s.mu.Unlock()

	// Delete them in the order created.
	sort.Slice(items, func(i, j int) bool {
		return items[i].serial < items[j].serial
	})

	var errs error
	for _, it := range items {
		errs = multierr.Append(errs, s.cleanUpItem(it))
		s.metrics.RecordTempCleaned(s.Len())
	}

	s.logger.Debug("Cleaned up all temp items", zap.Int("count", len(items)))
	return errs
}

// Delete removes path now. If that fails, path is registered so that a
// later CleanUpAll retries.
func (s *Service) Delete(path string) {
	key := filepath.Clean(path)
	s.logger.Debug("Trying to delete item", zap.String("path", key))

	if err := s.deleteRecursive(key); err != nil {
		s.logger.Debug("Remembering failed delete for later clean up",
			zap.String("path", key), zap.Error(err))
		s.register(key, key, "deferred")
	}
}

func (s *Service) cleanUpItem(it item) error {
	s.logger.Debug("Deleting item (recursively)",
		zap.String("path", it.path), zap.Uint64("serial", it.serial))
	return s.deleteRecursive(it.path)
}

func (s *Service) register(key, path, kind string) {
	it := item{
		path:   filepath.Clean(path),
		serial: s.serial.Add(1),
	}

	s.mu.Lock()
	s.items[filepath.Clean(key)] = it
	active := len(s.items)
	s.mu.Unlock()

	s.metrics.RecordTempRegistered(kind, active)
}

func newIDs(entropy io.Reader) *id.Generator {
	if entropy == nil {
		return id.NewGenerator()
	}
	return id.NewGeneratorWithEntropy(entropy)
}

func (s *Service) createDirectory() (string, error) {
	dir := filepath.Join(s.cfg.Root, s.ids.GenerateWithPrefix(s.cfg.Prefix))
	if err := os.Mkdir(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	return dir, nil
}

func (s *Service) createFile(dir, extension string) (string, error) {
	if extension == "" {
		extension = DefaultExtension
	}

	f, err := os.CreateTemp(dir, s.cfg.Prefix+"*"+extension)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return filepath.Clean(name), nil
}
