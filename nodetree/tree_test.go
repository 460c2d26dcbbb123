package nodetree_test

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/andreyvit/csav/nodetree"
)

type recorded struct {
	node   string
	origin string
	op     nodetree.Op
}

func TestTree_changeNotification(t *testing.T) {
	leaf := nodetree.NewIndexed(0, "leaf", []byte{1})
	mid := nodetree.NewIndexed(0, "mid", nil, leaf)
	other := nodetree.NewIndexed(0, "other", []byte{2})
	tree := nodetree.NewTree(nodetree.NewRoot(mid, other))

	var log []recorded
	rec := func(chg *nodetree.Change) {
		log = append(log, recorded{chg.Node().String(), chg.Origin().String(), chg.Op()})
	}
	tree.Listen(leaf, rec)
	tree.Listen(mid, rec)
	tree.Listen(tree.Root(), rec)
	cancelOther := tree.Listen(other, rec)

	tree.AssignData(leaf, []byte{9, 9})
	deepEq(t, log, []recorded{
		{"leaf[0]", "leaf[0]", nodetree.OpData},
		{"mid[0]", "leaf[0]", nodetree.OpSubtree},
		{"root", "leaf[0]", nodetree.OpSubtree},
	})
	if !bytes.Equal(leaf.Data(), []byte{9, 9}) {
		t.Errorf("leaf.Data() = %x", leaf.Data())
	}

	log = nil
	cancelOther()
	tree.AssignData(other, nil)
	deepEq(t, log, []recorded{
		{"root", "other[0]", nodetree.OpSubtree},
	})
}

func TestTree_assignChildrenReindexes(t *testing.T) {
	old := nodetree.NewIndexed(0, "old", nil)
	parent := nodetree.NewIndexed(0, "parent", nil, old)
	tree := nodetree.NewTree(nodetree.NewRoot(parent))

	var ops []nodetree.Op
	tree.Listen(parent, func(chg *nodetree.Change) { ops = append(ops, chg.Op()) })

	fresh := nodetree.NewIndexed(0, "fresh", []byte{1})
	tree.AssignChildren(parent, []*nodetree.Node{nodetree.NewBlob([]byte{0}), fresh})

	if tree.Contains(old) {
		t.Errorf("old child still indexed")
	}
	if !tree.Contains(fresh) || tree.Parent(fresh) != parent {
		t.Errorf("fresh child not indexed under parent")
	}
	path := tree.Path(fresh)
	if len(path) != 3 || path[0] != tree.Root() || path[1] != parent || path[2] != fresh {
		t.Errorf("Path(fresh) = %v", path)
	}

	tree.AssignData(fresh, []byte{2})
	deepEq(t, ops, []nodetree.Op{nodetree.OpChildren, nodetree.OpSubtree})
}

func TestTree_snapshotReadersSeeWholeValues(t *testing.T) {
	n := nodetree.NewIndexed(0, "n", []byte{1, 2, 3})
	tree := nodetree.NewTree(nodetree.NewRoot(n))
	before := n.Data()
	tree.AssignData(n, []byte{4})
	if !bytes.Equal(before, []byte{1, 2, 3}) {
		t.Errorf("previously obtained data changed to %x", before)
	}
}

func TestTree_dirty(t *testing.T) {
	leaf := nodetree.NewIndexed(0, "leaf", nil)
	sibling := nodetree.NewIndexed(0, "sibling", nil)
	tree := nodetree.NewTree(nodetree.NewRoot(nodetree.NewIndexed(0, "mid", nil, leaf), sibling))
	if tree.Dirty() {
		t.Fatalf("new tree is dirty")
	}
	tree.AssignData(leaf, []byte{1})
	if !tree.Dirty() || !leaf.Dirty() || sibling.Dirty() {
		t.Fatalf("dirty flags: tree=%v leaf=%v sibling=%v", tree.Dirty(), leaf.Dirty(), sibling.Dirty())
	}
	tree.ClearDirty()
	if tree.Dirty() || leaf.Dirty() {
		t.Fatalf("ClearDirty left dirty flags set")
	}
}

func TestTree_panics(t *testing.T) {
	blob := nodetree.NewBlob([]byte{1})
	tree := nodetree.NewTree(nodetree.NewRoot(blob))

	expectPanic(t, "children on blob", func() {
		tree.AssignChildren(blob, []*nodetree.Node{nodetree.NewBlob(nil)})
	})
	expectPanic(t, "foreign node", func() {
		tree.AssignData(nodetree.NewIndexed(0, "stray", nil), nil)
	})
	expectPanic(t, "non-root tree", func() {
		nodetree.NewTree(nodetree.NewIndexed(0, "x", nil))
	})
}

func TestTree_find(t *testing.T) {
	tree := nodetree.NewTree(nodetree.NewRoot(
		nodetree.NewIndexed(0, "a", nil,
			nodetree.NewIndexed(1, "dup", []byte{1}),
		),
		nodetree.NewIndexed(2, "dup", []byte{2}),
	))
	if n := tree.Find("dup"); n == nil || n.Idx() != 1 {
		t.Errorf("Find(dup) = %v, wanted first in pre-order", n)
	}
	if n := tree.Find("missing"); n != nil {
		t.Errorf("Find(missing) = %v", n)
	}
	var idxs []uint32
	for _, n := range tree.FindAll("dup") {
		idxs = append(idxs, n.Idx())
	}
	if !slices.Equal(idxs, []uint32{1, 2}) {
		t.Errorf("FindAll(dup) = %v", idxs)
	}
	if c := tree.Find("a").ChildByName("dup"); c == nil || c.Idx() != 1 {
		t.Errorf("ChildByName(dup) = %v", c)
	}
}

func TestStatsAndDump(t *testing.T) {
	root := nodetree.NewRoot(
		nodetree.NewIndexed(0, "a", nil,
			nodetree.NewBlob([]byte{1, 2}),
			nodetree.NewIndexed(1, "b", []byte{3}),
		),
	)
	st := nodetree.Stats(root)
	deepEq(t, st, nodetree.TreeStats{Nodes: 2, Blobs: 1, MaxDepth: 2, DataSize: 3})
	if st.TotalSize() != root.TreeSize() {
		t.Errorf("TotalSize = %d, TreeSize = %d", st.TotalSize(), root.TreeSize())
	}

	got := nodetree.DumpString(root, nodetree.DumpSizes)
	want := strings.Join([]string{
		"root (data 0, total 11)",
		"  a[0] (data 0, total 11)",
		"    b[1] (data 1, total 5)",
		"",
	}, "\n")
	if got != want {
		t.Errorf("Dump =\n%s\nwanted:\n%s", got, want)
	}
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}
