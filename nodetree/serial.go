package nodetree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/andreyvit/csav/packed"
)

var ErrCorrupted = errors.New("corrupted node tree")

// SerialDescriptor describes one indexed node of a flattened tree. Offsets are
// absolute, i.e. they include the base offset the tree was flattened at.
type SerialDescriptor struct {
	Name       string
	NextIdx    int32 // -1 = none
	ChildIdx   int32 // -1 = none
	DataOffset uint32
	DataSize   uint32
}

func (d SerialDescriptor) End() uint64 {
	return uint64(d.DataOffset) + uint64(d.DataSize)
}

// CorruptionError reports a structural inconsistency between descriptors and
// the byte buffer.
type CorruptionError struct {
	Idx int
	Off uint64
	Msg string
}

func corruptf(idx int, off uint64, format string, args ...any) error {
	return &CorruptionError{idx, off, fmt.Sprintf(format, args...)}
}

func (e *CorruptionError) Error() string {
	if e.Idx < 0 {
		return fmt.Sprintf("%v at 0x%x: %s", ErrCorrupted, e.Off, e.Msg)
	}
	return fmt.Sprintf("%v: node %d at 0x%x: %s", ErrCorrupted, e.Idx, e.Off, e.Msg)
}

func (e *CorruptionError) Unwrap() error {
	return ErrCorrupted
}

type flattener struct {
	base  uint32
	descs []SerialDescriptor
	bb    packed.Builder
}

// Flatten serializes the tree under root. Indexed nodes get descriptors in
// pre-order starting at 0; blobs are written inline and get no descriptor.
// base is the absolute offset the returned buffer will live at.
func Flatten(root *Node, base uint32) ([]SerialDescriptor, []byte, error) {
	size := root.TreeSize()
	if uint64(base)+uint64(size) > math.MaxUint32 {
		return nil, nil, fmt.Errorf("node tree of %d bytes at base 0x%x does not fit 32-bit offsets", size, base)
	}
	f := &flattener{
		base:  base,
		descs: make([]SerialDescriptor, 0, root.NodeCount()),
	}
	f.bb.EnsureExtra(size)

	if root.kind == KindRoot {
		st := root.state.Load()
		f.bb.AppendRaw(st.data)
		f.children(st.children, -1)
	} else {
		f.node(root)
	}

	if len(f.bb.Buf) != size {
		panic("internal size mismatch")
	}
	if err := VerifyIndexPrefixes(f.descs, f.bb.Buf, base); err != nil {
		panic(fmt.Errorf("flatten produced inconsistent output: %w", err))
	}
	return f.descs, f.bb.Buf, nil
}

func (f *flattener) offset() uint32 {
	return f.base + uint32(f.bb.Len())
}

func (f *flattener) node(n *Node) {
	st := n.state.Load()
	if n.kind == KindBlob {
		f.bb.AppendRaw(st.data)
		return
	}

	idx := len(f.descs)
	start := f.offset()
	f.descs = append(f.descs, SerialDescriptor{
		Name:       n.name,
		NextIdx:    -1,
		ChildIdx:   -1,
		DataOffset: start,
	})
	f.bb.AppendU32(uint32(idx))
	f.bb.AppendRaw(st.data)
	f.children(st.children, idx)
	f.descs[idx].DataSize = f.offset() - start
}

func (f *flattener) children(children []*Node, parent int) {
	prev := -1
	for _, c := range children {
		if c.kind == KindBlob {
			f.node(c)
			continue
		}
		ci := len(f.descs)
		if prev >= 0 {
			f.descs[prev].NextIdx = int32(ci)
		} else if parent >= 0 {
			f.descs[parent].ChildIdx = int32(ci)
		}
		f.node(c)
		prev = ci
	}
}

// VerifyIndexPrefixes checks that every descriptor's payload starts with the
// descriptor's own index.
func VerifyIndexPrefixes(descs []SerialDescriptor, buf []byte, base uint32) error {
	for i, d := range descs {
		if d.DataOffset < base || d.End() > uint64(base)+uint64(len(buf)) {
			return corruptf(i, uint64(d.DataOffset), "payload [0x%x, 0x%x) outside of buffer [0x%x, 0x%x)", d.DataOffset, d.End(), base, uint64(base)+uint64(len(buf)))
		}
		if d.DataSize < IdxPrefixSize {
			return corruptf(i, uint64(d.DataOffset), "payload of %d bytes cannot hold the index prefix", d.DataSize)
		}
		rel := d.DataOffset - base
		if v := binary.LittleEndian.Uint32(buf[rel:]); v != uint32(i) {
			return corruptf(i, uint64(d.DataOffset), "index prefix is %d", v)
		}
	}
	return nil
}

type unflattener struct {
	descs   []SerialDescriptor
	buf     []byte
	base    uint32
	visited []bool
}

// Unflatten rebuilds a tree from descriptors and the buffer they point into.
// Byte ranges not covered by an indexed node become blob children.
func Unflatten(descs []SerialDescriptor, buf []byte, base uint32) (*Node, error) {
	if uint64(base)+uint64(len(buf)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: buffer of %d bytes at base 0x%x exceeds 32-bit offsets", ErrCorrupted, len(buf), base)
	}
	u := &unflattener{
		descs:   descs,
		buf:     buf,
		base:    base,
		visited: make([]bool, len(descs)),
	}
	first := int32(-1)
	if len(descs) > 0 {
		first = 0
	}
	children, err := u.children(first, base, base+uint32(len(buf)))
	if err != nil {
		return nil, err
	}
	root := NewRoot(children...)
	if size := root.TreeSize(); size != len(buf) {
		return nil, corruptf(-1, uint64(base), "rebuilt tree has %d bytes, buffer has %d", size, len(buf))
	}
	return root, nil
}

func (u *unflattener) slice(start, end uint32) []byte {
	s, e := start-u.base, end-u.base
	return u.buf[s:e:e]
}

func (u *unflattener) children(first int32, start, end uint32) ([]*Node, error) {
	var result []*Node
	cur := start
	for ci := first; ci >= 0; {
		if int(ci) >= len(u.descs) {
			return nil, corruptf(-1, uint64(cur), "node index %d out of range (%d descriptors)", ci, len(u.descs))
		}
		d := u.descs[ci]
		if d.DataOffset < cur {
			return nil, corruptf(int(ci), uint64(d.DataOffset), "offset decreases (previous data ends at 0x%x)", cur)
		}
		if d.End() > uint64(end) {
			return nil, corruptf(int(ci), uint64(d.DataOffset), "payload ends at 0x%x past parent end 0x%x", d.End(), end)
		}
		if d.DataOffset > cur {
			result = append(result, NewBlob(u.slice(cur, d.DataOffset)))
		}
		child, err := u.node(ci)
		if err != nil {
			return nil, err
		}
		result = append(result, child)
		cur = uint32(d.End())
		ci = d.NextIdx
	}
	if cur < end {
		result = append(result, NewBlob(u.slice(cur, end)))
	}
	return result, nil
}

func (u *unflattener) node(i int32) (*Node, error) {
	if u.visited[i] {
		return nil, corruptf(int(i), uint64(u.descs[i].DataOffset), "node reached twice")
	}
	u.visited[i] = true

	d := u.descs[i]
	if d.DataSize < IdxPrefixSize {
		return nil, corruptf(int(i), uint64(d.DataOffset), "payload of %d bytes cannot hold the index prefix", d.DataSize)
	}
	prefix := u.slice(d.DataOffset, d.DataOffset+IdxPrefixSize)
	if v := binary.LittleEndian.Uint32(prefix); v != uint32(i) {
		return nil, corruptf(int(i), uint64(d.DataOffset), "index prefix is %d", v)
	}

	start, end := d.DataOffset+IdxPrefixSize, uint32(d.End())
	if d.ChildIdx < 0 {
		return NewIndexed(uint32(i), d.Name, u.slice(start, end)), nil
	}
	children, err := u.children(d.ChildIdx, start, end)
	if err != nil {
		return nil, err
	}
	return NewIndexed(uint32(i), d.Name, nil, children...), nil
}
