package process

import (
	"io"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
)

// FinishedHandler is called once, after the runner has reached its terminal
// state and before Done is closed.
type FinishedHandler func(r *Runner)

// Flusher is implemented by sinks that buffer writes.
type Flusher interface {
	Flush() error
}

// Option configures a Runner.
type Option func(*Runner)

// WithStdout sets the sink the child's standard output is drained into.
func WithStdout(w io.Writer) Option {
	return func(r *Runner) {
		r.stdout = w
	}
}

// WithStderr sets the sink the child's standard error is drained into.
func WithStderr(w io.Writer) Option {
	return func(r *Runner) {
		r.stderr = w
	}
}

// WithFinishedHandler registers the terminal-state callback.
func WithFinishedHandler(h FinishedHandler) Option {
	return func(r *Runner) {
		r.onFinished = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.OrNop(l)
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTerminal runs the child on a pseudo-terminal of the given size. Its
// combined output is drained into the stdout sink.
func WithTerminal(cols, rows int) Option {
	return func(r *Runner) {
		if cols <= 0 {
			cols = 80
		}
		if rows <= 0 {
			rows = 24
		}
		r.terminal = &winsize{cols: cols, rows: rows}
	}
}

// WithKillOnInterrupt makes Interrupt kill the child as well as abandon it.
func WithKillOnInterrupt() Option {
	return func(r *Runner) {
		r.killOnInterrupt = true
	}
}

type winsize struct {
	cols, rows int
}
