package nodetree

// TreeStats summarizes a subtree.
type TreeStats struct {
	Nodes    int // indexed nodes
	Blobs    int
	MaxDepth int
	DataSize int // own data of all nodes
}

// TotalSize is the flattened size of the subtree.
func (ts *TreeStats) TotalSize() int {
	return ts.DataSize + ts.Nodes*IdxPrefixSize
}

func Stats(root *Node) TreeStats {
	var ts TreeStats
	walk(root, 0, func(n *Node, depth int) bool {
		switch n.kind {
		case KindIndexed:
			ts.Nodes++
		case KindBlob:
			ts.Blobs++
		}
		ts.MaxDepth = max(ts.MaxDepth, depth)
		ts.DataSize += len(n.Data())
		return true
	})
	return ts
}
