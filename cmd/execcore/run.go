package main

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/capture"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/process"
	"github.com/GriffinCanCode/AgentOS/execcore/internal/shared/utils"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Exit codes used when the child produced none.
const (
	exitExecFailed  = 127
	exitInterrupted = 130
)

type runFlags struct {
	stdoutPath  string
	stderrPath  string
	compression string
	format      string
	timeout     time.Duration
	kill        bool
	pty         bool
	cols, rows  int
	dir         string
	digest      string
}

func newRunCommand(global *globalFlags) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run a command and capture its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := newApp(global)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, a.close())
			}()

			return runCapture(cmd, a, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.stdoutPath, "out", "", "write captured stdout to this file")
	cmd.Flags().StringVar(&flags.stderrPath, "err", "", "write captured stderr to this file")
	cmd.Flags().StringVar(&flags.compression, "compress", "none", "compression for --out/--err (none, gzip, zstd)")
	cmd.Flags().StringVar(&flags.format, "format", "json", "report format (json, yaml)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "interrupt the command after this long")
	cmd.Flags().BoolVar(&flags.kill, "kill", true, "kill the command when it is interrupted")
	cmd.Flags().BoolVar(&flags.pty, "pty", false, "run the command on a pseudo-terminal")
	cmd.Flags().IntVar(&flags.cols, "cols", 80, "pseudo-terminal width")
	cmd.Flags().IntVar(&flags.rows, "rows", 24, "pseudo-terminal height")
	cmd.Flags().StringVar(&flags.dir, "dir", "", "working directory for the command")
	cmd.Flags().StringVar(&flags.digest, "digest", "", "record a digest of each stream (sha256, blake2b)")

	return cmd
}

func runCapture(cmd *cobra.Command, a *app, flags *runFlags, args []string) error {
	compression, err := capture.ParseCompression(flags.compression)
	if err != nil {
		return err
	}
	format, err := parseFormat(flags.format)
	if err != nil {
		return err
	}
	var digest utils.HashAlgorithm
	if flags.digest != "" {
		if digest, err = utils.ParseHashAlgorithm(flags.digest); err != nil {
			return err
		}
	}

	capturer := capture.New(a.store, capture.Config{
		HeapLimit:       a.cfg.Spill.HeapLimit,
		InitialHeapSize: a.cfg.Spill.InitialHeapSize,
	}, a.logger, a.metrics)

	res, runErr := capturer.Run(cmd.Context(), process.Command{Args: args, Dir: flags.dir}, capture.Options{
		StdoutPath:      flags.stdoutPath,
		StderrPath:      flags.stderrPath,
		Compression:     compression,
		Timeout:         flags.timeout,
		KillOnInterrupt: flags.kill,
		Terminal:        flags.pty,
		Cols:            flags.cols,
		Rows:            flags.rows,
		Digest:          digest,
	})
	defer func() {
		if err := res.Dispose(); err != nil {
			a.logger.Warn("Failed to dispose captured output", zap.Error(err))
		}
	}()
	if runErr != nil {
		return runErr
	}

	if err := writeReport(cmd.OutOrStdout(), &res.Report, format); err != nil {
		return err
	}
	return exitStatus(&res.Report)
}

// exitStatus maps a report to the command's own exit status.
func exitStatus(rep *capture.Report) error {
	switch {
	case rep.ExitCode != nil && *rep.ExitCode == 0:
		return nil
	case rep.ExitCode != nil:
		return &exitError{code: *rep.ExitCode}
	case rep.State == process.StateExecFailed.String():
		return &exitError{code: exitExecFailed}
	default:
		return &exitError{code: exitInterrupted}
	}
}
