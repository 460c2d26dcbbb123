// Package nodetree implements the in-memory tree of named byte blobs stored in
// a save file, and the serial codec that converts it to and from a flat array
// of linked descriptors plus one contiguous byte buffer.
//
// A tree has three kinds of nodes:
//
//   - the root, a synthetic container that only exists in memory;
//   - indexed nodes, which have a name and are described by a descriptor when
//     flattened;
//   - blobs, anonymous byte runs between indexed siblings.
//
// Node contents are immutable. Mutation goes through Tree, which replaces the
// data or children slices as a whole and notifies listeners.
package nodetree

import (
	"fmt"
	"sync/atomic"
)

type Kind uint8

const (
	KindBlob Kind = iota
	KindIndexed
	KindRoot
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindIndexed:
		return "indexed"
	case KindRoot:
		return "root"
	default:
		return fmt.Sprintf("invalid kind %d", int(k))
	}
}

// IdxPrefixSize is the size of the little-endian self-index that starts every
// indexed node's serialized payload.
const IdxPrefixSize = 4

type Node struct {
	kind  Kind
	idx   uint32
	name  string
	state atomic.Pointer[content]
	dirty atomic.Bool
}

type content struct {
	data     []byte
	children []*Node
}

func newNode(kind Kind, idx uint32, name string, data []byte, children []*Node) *Node {
	n := &Node{kind: kind, idx: idx, name: name}
	n.state.Store(&content{data: data, children: children})
	return n
}

// NewBlob returns an anonymous byte-run node. The node takes ownership of data.
func NewBlob(data []byte) *Node {
	return newNode(KindBlob, 0, "", data, nil)
}

// NewIndexed returns a named node. The index is informational: flattening
// assigns indices in pre-order regardless of this value.
func NewIndexed(idx uint32, name string, data []byte, children ...*Node) *Node {
	return newNode(KindIndexed, idx, name, data, cloneChildren(children))
}

func NewRoot(children ...*Node) *Node {
	return newNode(KindRoot, 0, "", nil, cloneChildren(children))
}

func cloneChildren(children []*Node) []*Node {
	if len(children) == 0 {
		return nil
	}
	for _, c := range children {
		if c == nil {
			panic("nodetree: nil child")
		}
		if c.kind == KindRoot {
			panic("nodetree: root node cannot be a child")
		}
	}
	return append([]*Node(nil), children...)
}

func (n *Node) Kind() Kind     { return n.kind }
func (n *Node) Name() string   { return n.name }
func (n *Node) Idx() uint32    { return n.idx }
func (n *Node) IsBlob() bool   { return n.kind == KindBlob }
func (n *Node) IsRoot() bool   { return n.kind == KindRoot }
func (n *Node) Dirty() bool    { return n.dirty.Load() }
func (n *Node) String() string { return n.describe() }

// Data returns the node's own bytes. The slice must not be modified.
func (n *Node) Data() []byte {
	return n.state.Load().data
}

// Children returns a copy of the child list.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.state.Load().children...)
}

func (n *Node) ChildCount() int {
	return len(n.state.Load().children)
}

func (n *Node) Child(i int) *Node {
	return n.state.Load().children[i]
}

// ChildByName returns the first direct child with the given name.
func (n *Node) ChildByName(name string) *Node {
	for _, c := range n.state.Load().children {
		if c.kind == KindIndexed && c.name == name {
			return c
		}
	}
	return nil
}

// TreeSize returns the number of bytes the subtree occupies when flattened:
// own data, plus children, plus the index prefix of every indexed node.
func (n *Node) TreeSize() int {
	st := n.state.Load()
	size := len(st.data)
	if n.kind == KindIndexed {
		size += IdxPrefixSize
	}
	for _, c := range st.children {
		size += c.TreeSize()
	}
	return size
}

// NodeCount returns the number of indexed nodes in the subtree, including n.
func (n *Node) NodeCount() int {
	var count int
	if n.kind == KindIndexed {
		count = 1
	}
	for _, c := range n.state.Load().children {
		count += c.NodeCount()
	}
	return count
}

func (n *Node) describe() string {
	switch n.kind {
	case KindBlob:
		return fmt.Sprintf("blob(%d)", len(n.Data()))
	case KindRoot:
		return "root"
	default:
		return fmt.Sprintf("%s[%d]", n.name, n.idx)
	}
}

// Equal reports structural equality: kinds, names, data and children in order.
// Indices are ignored since they are reassigned on every flatten.
func Equal(a, b *Node) bool {
	if a.kind != b.kind || a.name != b.name {
		return false
	}
	as, bs := a.state.Load(), b.state.Load()
	if string(as.data) != string(bs.data) || len(as.children) != len(bs.children) {
		return false
	}
	for i := range as.children {
		if !Equal(as.children[i], bs.children[i]) {
			return false
		}
	}
	return true
}
