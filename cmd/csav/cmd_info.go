package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav/nodetree"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info PATH",
		Short: "Print header version and node tree statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			st := nodetree.Stats(f.Tree.Root())
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "version: %v\n", f.Version)
			if f.Version.Misc != "" {
				fmt.Fprintf(w, "misc: %q\n", f.Version.Misc)
			}
			fmt.Fprintf(w, "nodes: %d\n", st.Nodes)
			fmt.Fprintf(w, "blobs: %d\n", st.Blobs)
			fmt.Fprintf(w, "depth: %d\n", st.MaxDepth)
			fmt.Fprintf(w, "data: %d bytes\n", st.TotalSize())
			return nil
		},
	}
}
