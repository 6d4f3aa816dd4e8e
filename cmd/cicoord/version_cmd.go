package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is stamped at link time, with -ldflags "-X main.version=...".
var version string

// versionString falls back to the module version recorded by
// `go install`, for binaries built without the linker flag.
func versionString() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "unversioned"
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of cicoord",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkArgs(cmd, args); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
			return nil
		},
	}
}
