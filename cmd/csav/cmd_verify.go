package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav"
	"github.com/andreyvit/csav/nodetree"
	"github.com/andreyvit/csav/objgraph"
)

func newVerifyCmd(a *app) *cobra.Command {
	var nodes []string
	cmd := &cobra.Command{
		Use:   "verify PATH",
		Short: "Check that the file and its object packages re-encode to identical bytes",
		Long: `Check that the file and its object packages re-encode to identical bytes.

Object packages are checked only in the nodes named by --node and by the
package_nodes config setting. Without either, only the node tree is checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}

			encoded, err := csav.Encode(f, a.csavOptions(ctx))
			if err != nil {
				return fmt.Errorf("re-encode: %w", err)
			}
			again, err := csav.Decode(encoded, a.csavOptions(ctx))
			if err != nil {
				return fmt.Errorf("re-decode: %w", err)
			}
			if !nodetree.Equal(f.Tree.Root(), again.Tree.Root()) {
				return fmt.Errorf("node tree changed after re-encoding")
			}
			fmt.Fprintf(w, "ok: node tree (%d bytes re-encoded)\n", len(encoded))

			names := packageNodeNames(nodes, a.cfg.PackageNodes)
			var checked, failed int
			for _, name := range names {
				for _, n := range f.Tree.FindAll(name) {
					checked++
					if err := a.verifyPackage(cmd, n); err != nil {
						failed++
						fmt.Fprintf(w, "FAIL: %s #%d: %v\n", n.Name(), n.Idx(), err)
					} else {
						fmt.Fprintf(w, "ok: %s #%d\n", n.Name(), n.Idx())
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d packages failed verification", failed, checked)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&nodes, "node", nil, "package node names to check in addition to package_nodes")
	return cmd
}

func (a *app) verifyPackage(cmd *cobra.Command, n *nodetree.Node) error {
	data, err := packageData(n)
	if err != nil {
		return err
	}
	err = objgraph.VerifyRoundTrip(data, a.reg, a.objgraphOptions(cmd.Context()))
	var me *objgraph.MismatchError
	if errors.As(err, &me) && me.Object >= 0 {
		return fmt.Errorf("%w (edited with an incompatible tool?)", err)
	}
	return err
}

// packageNodeNames merges name lists, dropping repeats.
func packageNodeNames(lists ...[]string) []string {
	var names []string
	for _, name := range slices.Concat(lists...) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}
