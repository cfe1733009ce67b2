package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/GriffinCanCode/AgentOS/execcore/internal/infrastructure/shutdown"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile  string
	logLevel    string
	development bool
	metricsAddr string
}

func main() {
	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	root := newRootCommand()
	err := root.ExecuteContext(ctx)

	var exit *exitError
	switch {
	case errors.As(err, &exit):
		stop()
		os.Exit(exit.code)
	case err != nil:
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "execcore",
		Short: "Run external commands with tiered output capture",
		Long: "execcore runs a command with its stdout and stderr captured into " +
			"memory-first spill buffers, persists them on request, and cleans up " +
			"every temporary file it created on exit.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "TOML or YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.development, "dev", false, "human-readable development logging")
	root.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newSweepCommand(flags))

	return root
}

// exitError carries the child's exit code out of a successful capture.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
