package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/csav/nodetree"
	"github.com/andreyvit/csav/objgraph"
)

func newDumpCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "dump PATH NODE",
		Short: "Decode the object package stored in a node and print its objects",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			n := f.Tree.Find(args[1])
			if n == nil {
				return fmt.Errorf("no node named %q", args[1])
			}
			data, err := packageData(n)
			if err != nil {
				return err
			}
			pkg, err := objgraph.DecodePackage(data, a.reg, a.objgraphOptions(cmd.Context()))
			if err != nil {
				return fmt.Errorf("%s: %w", n.Name(), err)
			}
			objs := pkg.Roots()
			if all {
				objs = pkg.Objects
			}
			p := newPrinter(cmd.OutOrStdout(), pkg)
			for _, obj := range objs {
				p.root(obj)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "print every object, not only the roots")
	return cmd
}

// packageData returns the bytes of a package node. Packages live in leaf
// nodes; a node with children has no contiguous data of its own.
func packageData(n *nodetree.Node) ([]byte, error) {
	if n.ChildCount() > 0 {
		return nil, fmt.Errorf("node %q has %d children, not a package", n.Name(), n.ChildCount())
	}
	return n.Data(), nil
}

type printer struct {
	w       io.Writer
	indices map[*objgraph.Object]int
}

func newPrinter(w io.Writer, pkg *objgraph.Package) *printer {
	p := &printer{w: w, indices: make(map[*objgraph.Object]int)}
	for i, obj := range pkg.Objects {
		p.indices[obj] = i
	}
	return p
}

func (p *printer) root(obj *objgraph.Object) {
	fmt.Fprintf(p.w, "#%d %s\n", p.indices[obj], obj.TypeName())
	p.fields(obj, 1)
}

func (p *printer) fields(obj *objgraph.Object, depth int) {
	for _, f := range obj.Fields() {
		p.value(f.Name, f.Prop, depth)
	}
}

func (p *printer) value(label string, prop objgraph.Property, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := prop.(type) {
	case *objgraph.Object:
		fmt.Fprintf(p.w, "%s%s: %s\n", indent, label, v.TypeName())
		p.fields(v, depth+1)
	case *objgraph.FixedArray:
		fmt.Fprintf(p.w, "%s%s: %s\n", indent, label, v.TypeName())
		for i, e := range v.Elems {
			p.value(fmt.Sprintf("[%d]", i), e, depth+1)
		}
	case *objgraph.DynArray:
		fmt.Fprintf(p.w, "%s%s: %s (%d)\n", indent, label, v.TypeName(), len(v.Elems))
		for i, e := range v.Elems {
			p.value(fmt.Sprintf("[%d]", i), e, depth+1)
		}
	case *objgraph.Handle:
		if v.Obj == nil {
			fmt.Fprintf(p.w, "%s%s: %v\n", indent, label, v)
		} else {
			fmt.Fprintf(p.w, "%s%s: -> #%d %s\n", indent, label, p.indices[v.Obj], v.Obj.TypeName())
		}
	default:
		fmt.Fprintf(p.w, "%s%s: %v\n", indent, label, prop)
	}
}
