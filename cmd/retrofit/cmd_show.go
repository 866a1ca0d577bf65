package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd(opts *globalOptions) *cobra.Command {
	var original bool
	cmd := &cobra.Command{
		Use:   "show <class>",
		Short: "Print a class as the patch plan leaves it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(opts.dir)
			if err != nil {
				return err
			}
			defer p.Close()
			name := args[0]

			if !original {
				lds, err := p.build(cmd.Context())
				if err != nil {
					return err
				}
				for _, ld := range lds {
					if ld.Name == name {
						fmt.Fprint(cmd.OutOrStdout(), ld.Source)
						return nil
					}
				}
				log.Infof("%s is not touched by the patch plan", name)
			}
			text, origin, err := p.pool.Text(name)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			log.Debugf("%s from %s", name, origin)
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&original, "original", false, "print the class as the target ships it")
	return cmd
}
