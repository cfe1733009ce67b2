package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/process"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/shared/utils"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/spill"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/tempstore"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const interruptRetry = 10 * time.Millisecond

// Config sizes the spill buffers used for captured streams.
type Config struct {
	HeapLimit       int64
	InitialHeapSize int
}

// Options control a single captured run.
type Options struct {
	// StdoutPath and StderrPath, when set, receive the stream after the run.
	StdoutPath string
	StderrPath string
	// Compression applies to persisted streams.
	Compression Compression
	// Timeout interrupts the run when exceeded. Zero means no limit.
	Timeout time.Duration
	// KillOnInterrupt kills the child when the run is interrupted.
	KillOnInterrupt bool
	// Terminal runs the child on a pty of Cols x Rows; stderr stays empty.
	Terminal   bool
	Cols, Rows int
	// Digest, when set, records a digest of each non-empty stream.
	Digest utils.HashAlgorithm
}

// Result holds the report and the captured streams. Callers must Dispose it.
type Result struct {
	Report Report
	Stdout *spill.Buffer
	Stderr *spill.Buffer
}

// Dispose releases both buffers.
func (r *Result) Dispose() error {
	return multierr.Combine(r.Stdout.Dispose(), r.Stderr.Dispose())
}

// Capturer runs commands with their output captured into spill buffers.
type Capturer struct {
	store   *tempstore.Service
	cfg     Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a Capturer allocating spill files from store.
func New(store *tempstore.Service, cfg Config, logger *logging.Logger, metrics *monitoring.Metrics) *Capturer {
	return &Capturer{
		store:   store,
		cfg:     cfg,
		logger:  logging.OrNop(logger).Named("capture"),
		metrics: metrics,
	}
}

// Run executes cmd, waits for it (or for ctx, or the timeout), and persists
// the requested streams. The returned Result is non-nil whenever the run
// was attempted, even if persisting failed.
func (c *Capturer) Run(ctx context.Context, cmd process.Command, opts Options) (*Result, error) {
	res := &Result{
		Stdout: c.newBuffer(),
		Stderr: c.newBuffer(),
	}

	runnerOpts := []process.Option{
		process.WithStdout(res.Stdout),
		process.WithStderr(res.Stderr),
		process.WithLogger(c.logger),
		process.WithMetrics(c.metrics),
	}
	if opts.Terminal {
		runnerOpts = append(runnerOpts, process.WithTerminal(opts.Cols, opts.Rows))
	}
	if opts.KillOnInterrupt {
		runnerOpts = append(runnerOpts, process.WithKillOnInterrupt())
	}

	runner := process.New(cmd, runnerOpts...)
	started := time.Now()

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := runner.RunAsync(); err != nil {
		return res, err
	}
	c.await(runCtx, runner)

	if err := multierr.Combine(res.Stdout.Close(), res.Stderr.Close()); err != nil {
		return res, fmt.Errorf("failed to seal captured output: %w", err)
	}

	var hasher *utils.Hasher
	if opts.Digest != "" {
		hasher = utils.NewHasher(opts.Digest)
	}
	res.Report = c.report(runner, res, started, hasher)

	var errs error
	if opts.StdoutPath != "" {
		stored, err := c.persist(ctx, res.Stdout, opts.StdoutPath, opts.Compression)
		errs = multierr.Append(errs, err)
		res.Report.Stdout.Destination = opts.StdoutPath
		res.Report.Stdout.Compression = string(opts.Compression)
		res.Report.Stdout.Stored = stored
	}
	if opts.StderrPath != "" {
		stored, err := c.persist(ctx, res.Stderr, opts.StderrPath, opts.Compression)
		errs = multierr.Append(errs, err)
		res.Report.Stderr.Destination = opts.StderrPath
		res.Report.Stderr.Compression = string(opts.Compression)
		res.Report.Stderr.Stored = stored
	}

	return res, errs
}

func (c *Capturer) newBuffer() *spill.Buffer {
	return spill.New(c.store,
		spill.WithHeapLimit(c.cfg.HeapLimit),
		spill.WithInitialHeapSize(c.cfg.InitialHeapSize),
		spill.WithLogger(c.logger),
		spill.WithMetrics(c.metrics))
}

// await blocks until the run is terminal, interrupting it if ctx ends
// first.
func (c *Capturer) await(ctx context.Context, runner *process.Runner) {
	select {
	case <-runner.Done():
		return
	case <-ctx.Done():
	}

	c.logger.Info("Interrupting run",
		zap.String("run_id", runner.ID()), zap.Error(context.Cause(ctx)))

	for {
		err := runner.Interrupt()
		if !errors.Is(err, process.ErrNotStarted) {
			break
		}
		// Still spawning; try again once it is running.
		select {
		case <-runner.Done():
			return
		case <-time.After(interruptRetry):
		}
	}
	<-runner.Done()
}

func (c *Capturer) report(runner *process.Runner, res *Result, started time.Time, hasher *utils.Hasher) Report {
	rep := Report{
		RunID:       runner.ID(),
		CommandLine: runner.CommandLine(),
		State:       runner.State().String(),
		StartedAt:   started,
		Duration:    time.Since(started).Round(time.Millisecond).String(),
		Stdout:      c.streamReport(res.Stdout, hasher),
		Stderr:      c.streamReport(res.Stderr, hasher),
	}

	if code, err := runner.ExitCode(); err == nil {
		rep.ExitCode = &code
	}
	if cause, err := runner.ExecutionError(); err == nil && cause != nil {
		rep.Error = cause.Error()
	}
	return rep
}

func (c *Capturer) streamReport(buf *spill.Buffer, hasher *utils.Hasher) StreamReport {
	sr := StreamReport{
		Bytes:  buf.Size(),
		OnDisk: buf.OnDisk(),
	}
	if sr.Bytes == 0 {
		return sr
	}

	if mtype, err := detect(buf); err != nil {
		c.logger.Debug("MIME detection failed", zap.Error(err))
	} else {
		sr.MIME = mtype.String()
	}

	if hasher != nil {
		digest, err := digestOf(buf, hasher)
		if err != nil {
			c.logger.Warn("Failed to digest captured output", zap.Error(err))
		} else {
			sr.Digest = hasher.Label(digest)
		}
	}
	return sr
}

func detect(buf *spill.Buffer) (*mimetype.MIME, error) {
	r, err := buf.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return mimetype.DetectReader(r)
}

func digestOf(buf *spill.Buffer, hasher *utils.Hasher) (string, error) {
	r, err := buf.Reader()
	if err != nil {
		return "", err
	}
	defer r.Close()

	digest, _, err := hasher.HashReader(r)
	return digest, err
}

// persist writes buf to a temp file next to dst and moves it into place. It
// returns the number of bytes stored.
func (c *Capturer) persist(ctx context.Context, buf *spill.Buffer, dst string, comp Compression) (int64, error) {
	dst, err := filepath.Abs(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", dst, err)
	}

	tmp, err := c.store.CreateTempFileIn(filepath.Dir(dst), ".part")
	if err != nil {
		return 0, err
	}
	defer c.store.CleanUp(tmp)

	stored, err := writeEncoded(tmp, buf, comp)
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", dst, err)
	}

	if err := c.store.RenameOrCopy(ctx, tmp, dst); err != nil {
		return 0, err
	}

	c.logger.Debug("Persisted captured output",
		zap.String("path", dst),
		zap.String("compression", string(comp)),
		zap.Int64("bytes", stored))
	return stored, nil
}

func writeEncoded(path string, buf *spill.Buffer, comp Compression) (n int64, err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	counter := &countingWriter{w: f}
	enc, err := comp.encoder(counter)
	if err != nil {
		return 0, err
	}
	if _, err := buf.WriteTo(enc); err != nil {
		enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
