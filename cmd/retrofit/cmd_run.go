package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/retrofit/env"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run [args...]",
		Short: "Patch the target and run its main routine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(opts, cmd.OutOrStdout(), func(e *env.Environment) error {
				return e.Main(cmd.Context(), args...)
			})
		},
	}
}

func newMacroCmd(opts *globalOptions) *cobra.Command {
	var options string
	cmd := &cobra.Command{
		Use:   "macro <name> <code> [arg]",
		Short: "Run a macro in the patched target",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 3 {
				arg = args[2]
			}
			return withEnvironment(opts, cmd.OutOrStdout(), func(e *env.Environment) error {
				ctx := cmd.Context()
				if options != "" {
					if err := e.SetMacroOptions(ctx, options); err != nil {
						return err
					}
				}
				result, err := e.RunMacro(ctx, args[0], args[1], arg)
				if err != nil {
					return err
				}
				if result != "" {
					fmt.Fprintln(cmd.OutOrStdout(), result)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&options, "options", "", "options the macro reads")
	return cmd
}

func newCommandCmd(opts *globalOptions) *cobra.Command {
	var options string
	cmd := &cobra.Command{
		Use:   "command <label>",
		Short: "Run a menu command of the patched target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(opts, cmd.OutOrStdout(), func(e *env.Environment) error {
				return e.RunCommand(cmd.Context(), args[0], options)
			})
		},
	}
	cmd.Flags().StringVar(&options, "options", "", "options the command reads")
	return cmd
}

func newPluginCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plugin <class> [arg]",
		Short: "Run a plugin class in the patched target",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 2 {
				arg = args[1]
			}
			return withEnvironment(opts, cmd.OutOrStdout(), func(e *env.Environment) error {
				result, err := e.RunPlugIn(cmd.Context(), args[0], arg)
				if err != nil {
					return err
				}
				if result != nil {
					fmt.Fprintln(cmd.OutOrStdout(), result)
				}
				return nil
			})
		},
	}
}

func newMenuCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Start the target and print the menu structure it registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var started strings.Builder
			return withEnvironment(opts, &started, func(e *env.Environment) error {
				if err := e.Main(cmd.Context()); err != nil {
					return err
				}
				log.Debugf("target output: %q", started.String())
				out := cmd.OutOrStdout()
				entries, err := e.MenuStructure(cmd.Context())
				if err != nil {
					return err
				}
				for _, entry := range entries {
					if entry.Command == "" {
						fmt.Fprintln(out, entry.Path)
						continue
					}
					fmt.Fprintf(out, "%s\t%s\n", entry.Path, entry.Command)
				}
				return nil
			})
		},
	}
}
