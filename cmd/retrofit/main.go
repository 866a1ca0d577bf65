// Command retrofit patches a legacy target and drives it through its
// patched entry points.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("retrofit.cli")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOptions struct {
	dir     string
	verbose int
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "retrofit",
		Short:         "Patch a legacy application at its class-loading boundary",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(opts.verbose, nil)
		},
	}
	root.PersistentFlags().StringVarP(&opts.dir, "project", "C", ".", "directory to search for retrofit.toml")
	root.PersistentFlags().CountVarP(&opts.verbose, "verbose", "v", "increase log verbosity (repeatable)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newPatchCmd(opts))
	root.AddCommand(newShowCmd(opts))
	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newMacroCmd(opts))
	root.AddCommand(newCommandCmd(opts))
	root.AddCommand(newPluginCmd(opts))
	root.AddCommand(newMenuCmd(opts))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "retrofit 0.1.0-dev")
		},
	}
}
