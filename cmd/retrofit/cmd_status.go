package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chazu/retrofit/engine"
	"github.com/chazu/retrofit/manifest"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the project configuration and what the patch plan touches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(opts.dir)
			if err != nil {
				return err
			}
			defer p.Close()
			m := p.manifest

			out := cmd.OutOrStdout()
			if p.found {
				fmt.Fprintf(out, "project: %s/%s\n", m.Dir, manifest.FileName)
			} else {
				fmt.Fprintf(out, "project: %s (no %s, using defaults)\n", m.Dir, manifest.FileName)
			}
			fmt.Fprintf(out, "entry:   %s\n", m.Target.Entry)
			fmt.Fprintf(out, "macro:   %s\n", m.Target.Macro)
			if sources := m.SourcePaths(); len(sources) > 0 {
				fmt.Fprintf(out, "sources: %s\n", strings.Join(sources, ", "))
			} else {
				fmt.Fprintln(out, "sources: (bundled target)")
			}
			names, err := p.pool.Classes()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "classes: %d\n", len(names))

			if engine.IsAlreadyPatched(p.loader(io.Discard)) {
				fmt.Fprintln(out, "state:   pre-patched")
			} else {
				fmt.Fprintln(out, "state:   unpatched")
			}
			fmt.Fprintf(out, "plan:    %d operations\n", p.environment(io.Discard).Plan().Len())

			lds, err := p.build(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, ld := range lds {
				fmt.Fprintf(out, "  %-24s %s\n", ld.Name, ld.Digest[:12])
			}
			return nil
		},
	}
}
