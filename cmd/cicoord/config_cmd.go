package main

import (
	"github.com/spf13/cobra"
)

type configOpts struct {
	*rootOpts
}

func newConfig(parent *rootOpts) *configOpts {
	return &configOpts{rootOpts: parent}
}

func (opts *configOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration.",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the configuration in effect, as YAML, with secrets redacted.",
		RunE:  opts.showRunE,
	})
	return cmd
}

func (opts *configOpts) showRunE(cmd *cobra.Command, args []string) error {
	if err := checkArgs(cmd, args); err != nil {
		return err
	}
	out, err := opts.config.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
