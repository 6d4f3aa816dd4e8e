package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// usageError is an error in how a command was invoked; main prints
// the command's usage along with it.
type usageError struct {
	error
}

func newUsageError(format string, args ...interface{}) usageError {
	return usageError{error: fmt.Errorf(format, args...)}
}

// checkArgs returns a usageError unless exactly the named positional
// arguments were given.
func checkArgs(cmd *cobra.Command, args []string, names ...string) error {
	if len(args) == len(names) {
		return nil
	}
	if len(names) == 0 {
		return newUsageError("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return newUsageError("%s expects %s, got %d argument(s)", cmd.CommandPath(), strings.Join(names, " and "), len(args))
}
