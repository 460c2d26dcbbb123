package nodetree

import (
	"testing"
	"time"
)

func TestTree_clearDirtyWaitsForMutations(t *testing.T) {
	leaf := NewIndexed(0, "leaf", []byte{1})
	tree := NewTree(NewRoot(leaf))
	tree.AssignData(leaf, []byte{2})

	tree.mut.Lock()
	done := make(chan struct{})
	go func() {
		tree.ClearDirty()
		close(done)
	}()
	select {
	case <-done:
		tree.mut.Unlock()
		t.Fatal("ClearDirty ran while the tree was locked")
	case <-time.After(20 * time.Millisecond):
	}
	if !leaf.Dirty() {
		t.Errorf("leaf cleaned while the tree was locked")
	}
	tree.mut.Unlock()
	<-done
	if tree.Dirty() || leaf.Dirty() {
		t.Errorf("dirty after ClearDirty")
	}
}
