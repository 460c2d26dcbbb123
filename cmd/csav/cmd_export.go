package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav/nodetree"
)

func newExportCmd(a *app) *cobra.Command {
	var compress bool
	cmd := &cobra.Command{
		Use:   "export PATH OUT",
		Short: "Write the node tree as a CBOR snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := os.Create(args[1])
			if err != nil {
				return err
			}
			if err := nodetree.WriteSnapshot(out, f.Tree.Root(), compress); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d nodes to %s\n", nodetree.Stats(f.Tree.Root()).Nodes, args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&compress, "zstd", false, "wrap the snapshot in a zstd frame")
	return cmd
}
