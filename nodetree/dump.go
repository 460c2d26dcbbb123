package nodetree

import (
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpBlobs = DumpFlags(1 << iota)
	DumpSizes
	DumpData

	DumpAll = DumpFlags(0xFFFFFFFFFFFFFFFF)

	indentStep    = "  "
	dumpDataBytes = 16
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes an indented outline of the subtree.
func Dump(w io.Writer, root *Node, f DumpFlags) {
	walk(root, 0, func(n *Node, depth int) bool {
		if n.kind == KindBlob && !f.Contains(DumpBlobs) {
			return true
		}
		var buf strings.Builder
		buf.WriteString(strings.Repeat(indentStep, depth))
		buf.WriteString(n.describe())
		if f.Contains(DumpSizes) && n.kind != KindBlob {
			fmt.Fprintf(&buf, " (data %d, total %d)", len(n.Data()), n.TreeSize())
		}
		if f.Contains(DumpData) {
			if data := n.Data(); len(data) > 0 {
				if len(data) > dumpDataBytes {
					fmt.Fprintf(&buf, " %x...", data[:dumpDataBytes])
				} else {
					fmt.Fprintf(&buf, " %x", data)
				}
			}
		}
		buf.WriteByte('\n')
		io.WriteString(w, buf.String())
		return true
	})
}

func DumpString(root *Node, f DumpFlags) string {
	var buf strings.Builder
	Dump(&buf, root, f)
	return buf.String()
}
