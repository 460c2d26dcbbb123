package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav/nodetree"
)

func newTreeCmd(a *app) *cobra.Command {
	var blobs, sizes, data bool
	var node string
	cmd := &cobra.Command{
		Use:   "tree PATH",
		Short: "Print the node tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			root := f.Tree.Root()
			if node != "" {
				if root = f.Tree.Find(node); root == nil {
					return fmt.Errorf("no node named %q", node)
				}
			}
			var flags nodetree.DumpFlags
			if blobs {
				flags |= nodetree.DumpBlobs
			}
			if sizes {
				flags |= nodetree.DumpSizes
			}
			if data {
				flags |= nodetree.DumpData | nodetree.DumpBlobs
			}
			nodetree.Dump(cmd.OutOrStdout(), root, flags)
			return nil
		},
	}
	cmd.Flags().BoolVar(&blobs, "blobs", false, "include blob nodes")
	cmd.Flags().BoolVar(&sizes, "sizes", false, "print data and subtree sizes")
	cmd.Flags().BoolVar(&data, "data", false, "print leading data bytes (implies --blobs)")
	cmd.Flags().StringVar(&node, "node", "", "print only the subtree of the first node with this name")
	return cmd
}
