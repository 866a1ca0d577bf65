package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/retrofit/archive"
)

func newPatchCmd(opts *globalOptions) *cobra.Command {
	var output string
	var full bool
	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply the patch plan and write the result as an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openProject(opts.dir)
			if err != nil {
				return err
			}
			defer p.Close()
			m := p.manifest

			lds, err := p.build(cmd.Context())
			if err != nil {
				return err
			}

			path := output
			if path == "" {
				path = m.ArchivePath()
			}
			if !cmd.Flags().Changed("full") {
				full = m.Archive.Full
			}
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("patch: %w", err)
			}
			err = archive.Write(f, lds, archive.Options{
				Entry:  m.Target.Entry,
				Full:   full,
				Pool:   p.pool,
				Config: m.Config(),
			})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(path)
				return fmt.Errorf("patch: writing %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d patched units)\n", path, len(lds))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default from retrofit.toml)")
	cmd.Flags().BoolVar(&full, "full", false, "include the untouched classes of the target")
	return cmd
}
