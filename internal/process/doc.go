// Package process runs external commands as supervised units of work.
//
// A Runner moves through StateNew, StateRunning and then exactly one of
// StateExecFailed, StateInterrupted or StateCompleted. While the child is
// alive two pump goroutines drain its stdout and stderr into the configured
// sinks (io.Discard by default) so the child can never stall on a full pipe.
// The pumps are joined before the terminal state is recorded, so no sink is
// written to after a caller observes the outcome.
//
// Interrupt is cooperative. It stops the runner from waiting and pumping;
// the child keeps running unless WithKillOnInterrupt is set. A child that
// exits before the interrupt is noticed still completes normally.
//
// A run whose output cannot be vouched for, for example because a sink
// failed, ends in StateInterrupted rather than StateCompleted.
//
// Example Usage:
//
//	r := process.New(process.Command{Args: []string{"git", "status"}},
//		process.WithStdout(out),
//		process.WithStderr(errOut))
//	if err := r.RunAsync(); err != nil {
//		return err
//	}
//	<-r.Done()
//	code, err := r.ExitCode()
package process
