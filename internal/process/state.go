package process

// State is the lifecycle stage of a Runner.
type State int

const (
	StateNew State = iota
	StateRunning
	StateExecFailed
	StateInterrupted
	StateCompleted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	case StateExecFailed:
		return "exec_failed"
	case StateInterrupted:
		return "interrupted"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen from s.
func (s State) IsTerminal() bool {
	return s == StateExecFailed || s == StateInterrupted || s == StateCompleted
}
