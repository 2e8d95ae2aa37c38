package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "melodium",
		Short:         "Run and check Mélodium-style dataflow designs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newDistributeWorkerCmd(flags))

	return cmd
}
