package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Priority orders shutdown hooks. Lower values run first.
type Priority int

const (
	PriorityEarly Priority = iota
	PriorityNormal
	PriorityLate
)

// String returns the string representation of the priority
func (p Priority) String() string {
	switch p {
	case PriorityEarly:
		return "early"
	case PriorityNormal:
		return "normal"
	case PriorityLate:
		return "late"
	default:
		return "unknown"
	}
}

// Hook is a named shutdown callback.
type Hook struct {
	Name     string
	Priority Priority
	Fn       func(ctx context.Context) error

	seq int
}

// Manager runs registered hooks exactly once, in priority order and then
// registration order.
type Manager struct {
	logger *logging.Logger

	mu    sync.Mutex
	hooks []Hook
	seq   int
	done  bool
	err   error
}

// NewManager creates a new shutdown manager
func NewManager(logger *logging.Logger) *Manager {
	return &Manager{logger: logging.OrNop(logger).Named("shutdown")}
}

// Register adds a hook. Hooks registered after Run has started are ignored
// and reported as an error.
func (m *Manager) Register(name string, priority Priority, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done {
		return fmt.Errorf("shutdown already ran, hook %q not registered", name)
	}

	m.seq++
	m.hooks = append(m.hooks, Hook{Name: name, Priority: priority, Fn: fn, seq: m.seq})
	m.logger.Debug("Registered shutdown hook",
		zap.String("hook", name),
		zap.Stringer("priority", priority))
	return nil
}

// Run executes all hooks. Every hook runs even if an earlier one fails; the
// errors are combined. Subsequent calls return the first result.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.done {
		err := m.err
		m.mu.Unlock()
		return err
	}
	m.done = true
	hooks := make([]Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool {
		if hooks[i].Priority != hooks[j].Priority {
			return hooks[i].Priority < hooks[j].Priority
		}
		return hooks[i].seq < hooks[j].seq
	})

	var errs error
	for _, h := range hooks {
		m.logger.Debug("Running shutdown hook", zap.String("hook", h.Name))
		if err := runHook(ctx, h); err != nil {
			m.logger.Error("Shutdown hook failed", zap.String("hook", h.Name), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}

	m.mu.Lock()
	m.err = errs
	m.mu.Unlock()

	return errs
}

// runHook invokes a hook, converting a panic into an error so later hooks
// still run.
func runHook(ctx context.Context, h Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Fn(ctx)
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
