package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"github.com/creack/pty"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidState is wrapped by every error reporting a call made in the
// wrong lifecycle state.
var ErrInvalidState = errors.New("invalid process run state")

var (
	ErrAlreadyStarted = fmt.Errorf("%w: process run already started", ErrInvalidState)
	ErrNotAsync       = fmt.Errorf("%w: process run was not started asynchronously", ErrInvalidState)
	ErrNotStarted     = fmt.Errorf("%w: process run has not started", ErrInvalidState)
)

// signalExitBase is added to the signal number of a child killed by a
// signal, as POSIX shells report it.
const signalExitBase = 128

// Runner executes one command and records its outcome.
type Runner struct {
	id  string
	cmd Command

	stdout          io.Writer
	stderr          io.Writer
	onFinished      FinishedHandler
	logger          *logging.Logger
	metrics         *monitoring.Metrics
	terminal        *winsize
	killOnInterrupt bool

	done chan struct{}

	mu       sync.Mutex
	state    State
	started  bool
	async    bool
	cancel   context.CancelFunc
	exitCode int
	execErr  error
}

// New creates a runner in StateNew. Nothing runs until Run or RunAsync.
func New(cmd Command, opts ...Option) *Runner {
	r := &Runner{
		id:     uuid.NewString(),
		cmd:    cmd,
		stdout: io.Discard,
		stderr: io.Discard,
		logger: logging.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.stdout == nil {
		r.stdout = io.Discard
	}
	if r.stderr == nil {
		r.stderr = io.Discard
	}

	r.logger = r.logger.Named("process").With(zap.String("run_id", r.id))
	return r
}

// ID returns the run's unique identifier.
func (r *Runner) ID() string {
	return r.id
}

// CommandLine returns the command in display form.
func (r *Runner) CommandLine() string {
	return r.cmd.String()
}

// Run executes the command on the calling goroutine and blocks until a
// terminal state is reached. The outcome is read through State, ExitCode
// and ExecutionError; the returned error only reports misuse.
func (r *Runner) Run() error {
	ctx, err := r.start(false)
	if err != nil {
		return err
	}
	r.run(ctx)
	return nil
}

// RunAsync starts the command on its own goroutine and returns immediately.
func (r *Runner) RunAsync() error {
	ctx, err := r.start(true)
	if err != nil {
		return err
	}
	go r.run(ctx)
	return nil
}

func (r *Runner) start(async bool) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil, ErrAlreadyStarted
	}
	r.started = true
	r.async = async

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	return ctx, nil
}

// Interrupt asks an asynchronous run to stop waiting for its child. It is
// best effort: a child that finishes first still yields StateCompleted.
// Unless WithKillOnInterrupt was given the child itself is left running.
func (r *Runner) Interrupt() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.async {
		return ErrNotAsync
	}
	if r.state == StateNew {
		return ErrNotStarted
	}
	if r.state.IsTerminal() {
		return nil
	}

	r.logger.Debug("Interrupting run")
	r.cancel()
	return nil
}

// WaitForFinish blocks until an asynchronous run is terminal.
func (r *Runner) WaitForFinish() error {
	r.mu.Lock()
	async := r.async
	r.mu.Unlock()

	if !async {
		return ErrNotAsync
	}
	<-r.done
	return nil
}

// Done returns a channel that is closed once the run is terminal.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsFinished reports whether the run is terminal.
func (r *Runner) IsFinished() bool {
	return r.State().IsTerminal()
}

// ExitCode returns the child's exit code. Only valid in StateCompleted.
func (r *Runner) ExitCode() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateCompleted {
		return 0, fmt.Errorf("%w: exit code requires %s, run is %s", ErrInvalidState, StateCompleted, r.state)
	}
	return r.exitCode, nil
}

// ExecutionError returns why the child could not be started. Only valid in
// StateExecFailed.
func (r *Runner) ExecutionError() (error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateExecFailed {
		return nil, fmt.Errorf("%w: execution error requires %s, run is %s", ErrInvalidState, StateExecFailed, r.state)
	}
	return r.execErr, nil
}

// run drives the child from spawn to a terminal state.
func (r *Runner) run(ctx context.Context) {
	timer := monitoring.NewTimer(r.metrics)
	defer r.cancel()

	if len(r.cmd.Args) == 0 {
		r.logger.Debug("Empty command, nothing to run")
		r.finish(timer, StateCompleted, 0, nil)
		return
	}

	r.logger.Debug("Starting process", zap.String("command", r.CommandLine()))

	child, err := r.spawn()
	if err != nil {
		r.logger.Warn("Failed to start process",
			zap.String("command", r.CommandLine()), zap.Error(err))
		r.finish(timer, StateExecFailed, 0, err)
		return
	}

	r.setRunning()
	timer.Running()

	pumps := startPumps(ctx, r, child.streams)

	waited := make(chan error, 1)
	go func() {
		waited <- child.cmd.Wait()
	}()

	select {
	case waitErr := <-waited:
		// Drain whatever is still buffered in the pipes.
		if err := pumps.Wait(); err != nil {
			r.logger.Warn("Output may be incomplete", zap.Error(err))
			r.finish(timer, StateInterrupted, 0, nil)
			return
		}

		code, err := exitCode(waitErr)
		if err != nil {
			r.logger.Warn("Could not determine exit status", zap.Error(err))
			r.finish(timer, StateInterrupted, 0, nil)
			return
		}
		r.finish(timer, StateCompleted, code, nil)

	case <-ctx.Done():
		if r.killOnInterrupt {
			if err := child.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				r.logger.Warn("Failed to kill process", zap.Error(err))
			}
		}
		if err := pumps.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Debug("Pump stopped with error", zap.Error(err))
		}
		r.finish(timer, StateInterrupted, 0, nil)
	}
}

func (r *Runner) setRunning() {
	r.mu.Lock()
	r.state = StateRunning
	r.mu.Unlock()
	r.logger.Debug("Process running")
}

// finish records the terminal state, then notifies.
func (r *Runner) finish(timer *monitoring.Timer, state State, code int, execErr error) {
	r.mu.Lock()
	r.state = state
	r.exitCode = code
	r.execErr = execErr
	r.mu.Unlock()

	duration := timer.Stop(state.String())
	r.logger.Debug("Process finished",
		zap.Stringer("state", state),
		zap.Int("exit_code", code),
		zap.Duration("duration", duration))

	if r.onFinished != nil {
		r.onFinished(r)
	}
	close(r.done)
}

// child is a started process and the parent's ends of its output streams.
type child struct {
	cmd     *exec.Cmd
	streams []stream
}

func (r *Runner) spawn() (*child, error) {
	cmd := exec.Command(r.cmd.Args[0], r.cmd.Args[1:]...)
	cmd.Dir = r.cmd.Dir
	if r.cmd.Env != nil {
		cmd.Env = r.cmd.Env
	}

	if r.terminal != nil {
		return r.spawnTerminal(cmd)
	}
	return r.spawnPiped(cmd)
}

func (r *Runner) spawnPiped(cmd *exec.Cmd) (*child, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()

	// The child holds its own copies of the write ends.
	outW.Close()
	errW.Close()

	if startErr != nil {
		outR.Close()
		errR.Close()
		return nil, startErr
	}

	return &child{
		cmd: cmd,
		streams: []stream{
			{name: "stdout", src: outR, sink: r.stdout},
			{name: "stderr", src: errR, sink: r.stderr},
		},
	}, nil
}

func (r *Runner) spawnTerminal(cmd *exec.Cmd) (*child, error) {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(r.terminal.cols),
		Rows: uint16(r.terminal.rows),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	// The pty master reports EIO once the child side is gone, which the
	// pump treats as end of stream.
	return &child{
		cmd: cmd,
		streams: []stream{
			{name: "stdout", src: ptmx, sink: r.stdout},
		},
	}, nil
}

// exitCode extracts the exit status from cmd.Wait's result. A child killed
// by a signal reports 128 plus the signal number.
func exitCode(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return 0, waitErr
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return signalExitBase + int(status.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
