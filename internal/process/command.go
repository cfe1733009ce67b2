package process

import (
	"strconv"
	"strings"
)

// Command describes the child to run.
type Command struct {
	// Args is the program followed by its arguments. An empty Args is a
	// no-op that completes with exit code 0.
	Args []string
	// Env replaces the inherited environment when non-nil.
	Env []string
	// Dir is the working directory. Empty means the current one.
	Dir string
}

// String renders the command line for display, quoting arguments that
// would otherwise be ambiguous.
func (c Command) String() string {
	parts := make([]string, len(c.Args))
	for i, arg := range c.Args {
		parts[i] = quoteArg(arg)
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\") {
		return strconv.Quote(arg)
	}
	return arg
}
