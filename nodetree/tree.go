package nodetree

import (
	"fmt"
	"sync"
)

type (
	// Change describes one mutation as seen by a particular listener.
	Change struct {
		node   *Node
		origin *Node
		op     Op
	}

	Op int

	// Listener receives changes. It runs synchronously on the mutating
	// goroutine, after the tree lock has been released.
	Listener func(chg *Change)
)

const (
	OpNone Op = iota
	OpData
	OpChildren
	OpSubtree
)

// Node is the node the listener was registered on.
func (chg *Change) Node() *Node {
	return chg.node
}

// Origin is the node that was actually mutated. For OpSubtree it is a
// descendant of Node.
func (chg *Change) Origin() *Node {
	return chg.origin
}

func (chg *Change) Op() Op {
	return chg.op
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpData:
		return "data"
	case OpChildren:
		return "children"
	case OpSubtree:
		return "subtree"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

type listenerEntry struct {
	id int
	fn Listener
}

// Tree owns a root node and is the only way to mutate nodes under it.
// Ancestors are tracked in a parent index so that a change can be re-raised
// as OpSubtree on every ancestor without nodes referring to their parents.
type Tree struct {
	root *Node

	mut       sync.Mutex
	parents   map[*Node]*Node
	listeners map[*Node][]listenerEntry
	lastID    int
}

func NewTree(root *Node) *Tree {
	if root.kind != KindRoot {
		panic("nodetree: tree root must be a root node")
	}
	t := &Tree{
		root:      root,
		parents:   make(map[*Node]*Node),
		listeners: make(map[*Node][]listenerEntry),
	}
	t.indexSubtree(root)
	return t
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) indexSubtree(n *Node) {
	for _, c := range n.state.Load().children {
		t.parents[c] = n
		t.indexSubtree(c)
	}
}

func (t *Tree) unindexSubtree(n *Node) {
	for _, c := range n.state.Load().children {
		if t.parents[c] == n {
			delete(t.parents, c)
		}
		t.unindexSubtree(c)
	}
}

func (t *Tree) Parent(n *Node) *Node {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.parents[n]
}

// Contains reports whether n is currently part of the tree.
func (t *Tree) Contains(n *Node) bool {
	if n == t.root {
		return true
	}
	t.mut.Lock()
	defer t.mut.Unlock()
	_, ok := t.parents[n]
	return ok
}

// Path returns the chain of nodes from the root down to n, or nil if n is
// not in the tree.
func (t *Tree) Path(n *Node) []*Node {
	t.mut.Lock()
	defer t.mut.Unlock()
	return t.path_locked(n)
}

func (t *Tree) path_locked(n *Node) []*Node {
	var path []*Node
	for cur := n; cur != nil; cur = t.parents[cur] {
		path = append(path, cur)
		if cur == t.root {
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}
	}
	return nil
}

// Listen registers fn to be called when n changes or, with OpSubtree, when
// anything below n changes. The returned function unregisters it.
func (t *Tree) Listen(n *Node, fn Listener) (cancel func()) {
	t.mut.Lock()
	defer t.mut.Unlock()
	t.lastID++
	id := t.lastID
	t.listeners[n] = append(t.listeners[n], listenerEntry{id, fn})
	return func() {
		t.mut.Lock()
		defer t.mut.Unlock()
		ents := t.listeners[n]
		for i, e := range ents {
			if e.id == id {
				ents = append(ents[:i:i], ents[i+1:]...)
				break
			}
		}
		if len(ents) == 0 {
			delete(t.listeners, n)
		} else {
			t.listeners[n] = ents
		}
	}
}

// AssignData replaces the node's own bytes. The tree takes ownership of data.
func (t *Tree) AssignData(n *Node, data []byte) {
	t.mutate(n, OpData, func(old *content) *content {
		return &content{data: data, children: old.children}
	})
}

// AssignChildren replaces the node's child list.
func (t *Tree) AssignChildren(n *Node, children []*Node) {
	if n.kind == KindBlob && len(children) > 0 {
		panic("nodetree: blob nodes cannot have children")
	}
	children = cloneChildren(children)
	t.mutate(n, OpChildren, func(old *content) *content {
		return &content{data: old.data, children: children}
	})
}

func (t *Tree) mutate(n *Node, op Op, update func(old *content) *content) {
	t.mut.Lock()
	path := t.path_locked(n)
	if path == nil {
		t.mut.Unlock()
		panic(fmt.Errorf("nodetree: %v is not part of this tree", n))
	}

	old := n.state.Load()
	if op == OpChildren {
		t.unindexSubtree(n)
	}
	n.state.Store(update(old))
	if op == OpChildren {
		t.indexSubtree(n)
	}
	for _, p := range path {
		p.dirty.Store(true)
	}

	type delivery struct {
		fn  Listener
		chg *Change
	}
	var deliveries []delivery
	for i := len(path) - 1; i >= 0; i-- {
		target := path[i]
		chgOp := OpSubtree
		if target == n {
			chgOp = op
		}
		for _, e := range t.listeners[target] {
			deliveries = append(deliveries, delivery{e.fn, &Change{node: target, origin: n, op: chgOp}})
		}
	}
	t.mut.Unlock()

	for _, d := range deliveries {
		d.fn(d.chg)
	}
}

// Dirty reports whether anything in the tree changed since the last
// ClearDirty.
func (t *Tree) Dirty() bool {
	return t.root.Dirty()
}

// ClearDirty resets dirty flags. It holds the tree lock so that a concurrent
// mutation is either fully cleared or fully marked.
func (t *Tree) ClearDirty() {
	t.mut.Lock()
	defer t.mut.Unlock()
	walk(t.root, 0, func(n *Node, depth int) bool {
		n.dirty.Store(false)
		return true
	})
}

// Walk visits nodes in pre-order. Returning false from fn skips the node's
// children.
func (t *Tree) Walk(fn func(n *Node, depth int) bool) {
	walk(t.root, 0, fn)
}

func walk(n *Node, depth int, fn func(n *Node, depth int) bool) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.state.Load().children {
		walk(c, depth+1, fn)
	}
}

// Find returns the first indexed node with the given name in pre-order, or
// nil.
func (t *Tree) Find(name string) *Node {
	return Search(t.root, name)
}

// FindAll returns every indexed node with the given name in pre-order.
func (t *Tree) FindAll(name string) []*Node {
	var result []*Node
	t.Walk(func(n *Node, depth int) bool {
		if n.kind == KindIndexed && n.name == name {
			result = append(result, n)
		}
		return true
	})
	return result
}

// Search is the pre-order named lookup underlying Tree.Find.
func Search(root *Node, name string) *Node {
	if root.kind == KindIndexed && root.name == name {
		return root
	}
	for _, c := range root.state.Load().children {
		if found := Search(c, name); found != nil {
			return found
		}
	}
	return nil
}
