package nodetree

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Snapshot is a self-contained, serializable copy of a subtree used for
// exporting node trees outside of the save format.
type Snapshot struct {
	Kind     Kind       `cbor:"k"`
	Name     string     `cbor:"n,omitempty"`
	Data     []byte     `cbor:"d,omitempty"`
	Children []Snapshot `cbor:"c,omitempty"`
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var snapshotEncMode cbor.EncMode

func init() {
	var err error
	snapshotEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("nodetree: CBOR encoder initialization failed: " + err.Error())
	}
}

func TakeSnapshot(n *Node) Snapshot {
	st := n.state.Load()
	s := Snapshot{Kind: n.kind, Name: n.name, Data: st.data}
	for _, c := range st.children {
		s.Children = append(s.Children, TakeSnapshot(c))
	}
	return s
}

// Node rebuilds a tree from the snapshot. Indexed nodes are numbered in
// pre-order, matching what Flatten would assign.
func (s *Snapshot) Node() (*Node, error) {
	var next uint32
	return s.node(&next, true)
}

func (s *Snapshot) node(next *uint32, top bool) (*Node, error) {
	var idx uint32
	if s.Kind == KindIndexed {
		idx = *next
		*next++
	}
	var children []*Node
	for i := range s.Children {
		c, err := s.Children[i].node(next, false)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	switch s.Kind {
	case KindBlob:
		if len(children) > 0 {
			return nil, fmt.Errorf("snapshot: blob with %d children", len(children))
		}
		return NewBlob(s.Data), nil
	case KindRoot:
		if !top {
			return nil, fmt.Errorf("snapshot: nested root node")
		}
		return newNode(KindRoot, 0, "", s.Data, cloneChildren(children)), nil
	case KindIndexed:
		return NewIndexed(idx, s.Name, s.Data, children...), nil
	default:
		return nil, fmt.Errorf("snapshot: invalid node kind %d", int(s.Kind))
	}
}

// WriteSnapshot encodes the subtree as deterministic CBOR, optionally wrapped
// in a zstd frame.
func WriteSnapshot(w io.Writer, n *Node, compress bool) error {
	raw, err := snapshotEncMode.Marshal(TakeSnapshot(n))
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if !compress {
		_, err = w.Write(raw)
		return err
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("snapshot: zstd: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return fmt.Errorf("snapshot: zstd: %w", err)
	}
	return zw.Close()
}

// ReadSnapshot decodes output of WriteSnapshot, detecting zstd framing.
func ReadSnapshot(r io.Reader) (*Node, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zstdMagic))
	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd: %w", err)
		}
		defer zr.Close()
		src = zr
	}
	var s Snapshot
	if err := cbor.NewDecoder(src).Decode(&s); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	return s.Node()
}
