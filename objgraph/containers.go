package objgraph

import (
	"fmt"

	"github.com/andreyvit/csav/packed"
)

// FixedArray is a [N]T: exactly N elements, no count on disk.
type FixedArray struct {
	typ   string
	inner string
	count int
	reg   *Registry
	Elems []Property
}

func (p *FixedArray) TypeName() string { return p.typ }
func (p *FixedArray) Kind() Kind       { return KindFixedArray }
func (p *FixedArray) ElemType() string { return p.inner }
func (p *FixedArray) Len() int         { return p.count }

func (p *FixedArray) fill() error {
	p.Elems = make([]Property, p.count)
	for i := range p.Elems {
		e, err := p.reg.NewProperty(p.inner)
		if err != nil {
			return err
		}
		p.Elems[i] = e
	}
	return nil
}

// decode builds elements one at a time, so a huge N declared by a type name
// costs nothing unless the data actually holds that many elements.
func (p *FixedArray) decode(c *decoder, d *packed.Decoder) error {
	if p.count > d.Remaining() {
		return d.Errf(ErrCorrupted, "%s: %d elements do not fit in %d bytes", p.typ, p.count, d.Remaining())
	}
	p.Elems = make([]Property, 0, p.count)
	for i := range p.count {
		e, err := c.newProperty(p.inner)
		if err != nil {
			return err
		}
		if err := c.property(e, d); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		p.Elems = append(p.Elems, e)
	}
	return nil
}

func (p *FixedArray) encode(c *encoder, bb *packed.Builder) error {
	if len(p.Elems) != p.count {
		return fmt.Errorf("%s has %d elements", p.typ, len(p.Elems))
	}
	for i, e := range p.Elems {
		if err := e.encode(c, bb); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// DynArray is an array:T, stored as a u32 count followed by the elements.
type DynArray struct {
	typ   string
	inner string
	reg   *Registry
	Elems []Property
}

func (p *DynArray) TypeName() string { return p.typ }
func (p *DynArray) Kind() Kind       { return KindDynArray }
func (p *DynArray) ElemType() string { return p.inner }

// Append adds a zero-valued element and returns it.
func (p *DynArray) Append() Property {
	e, err := p.reg.NewProperty(p.inner)
	if err != nil {
		// the element type was validated when the array was created
		panic(err)
	}
	p.Elems = append(p.Elems, e)
	return e
}

func (p *DynArray) decode(c *decoder, d *packed.Decoder) error {
	n, err := d.U32()
	if err != nil {
		return err
	}
	// every element occupies at least one byte
	if uint64(n) > uint64(d.Remaining()) {
		return d.Errf(ErrCorrupted, "%d elements do not fit in %d bytes", n, d.Remaining())
	}
	p.Elems = make([]Property, 0, n)
	for i := range int(n) {
		e, err := c.newProperty(p.inner)
		if err != nil {
			return err
		}
		if err := c.property(e, d); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		p.Elems = append(p.Elems, e)
	}
	return nil
}

func (p *DynArray) encode(c *encoder, bb *packed.Builder) error {
	bb.AppendU32(uint32(len(p.Elems)))
	for i, e := range p.Elems {
		if err := e.encode(c, bb); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	return nil
}

// Handle references another object of the same package. Obj is nil for a
// null handle, or while the handle has not been resolved yet (then Index
// holds the on-disk value).
type Handle struct {
	typ    string
	target string
	weak   bool
	Index  int32
	Obj    *Object
}

func (p *Handle) TypeName() string   { return p.typ }
func (p *Handle) Kind() Kind         { return KindHandle }
func (p *Handle) TargetType() string { return p.target }
func (p *Handle) Weak() bool         { return p.weak }
func (p *Handle) IsNull() bool       { return p.Obj == nil && p.Index < 0 }

func (p *Handle) String() string {
	if p.IsNull() {
		return "null"
	}
	return fmt.Sprintf("@%d", p.Index)
}

// Set points the handle at obj; nil makes it null.
func (p *Handle) Set(obj *Object) {
	p.Obj = obj
	if obj == nil {
		p.Index = -1
	}
}

func (p *Handle) decode(c *decoder, d *packed.Decoder) (err error) {
	p.Index, err = d.I32()
	if err != nil {
		return err
	}
	if p.Index < -1 {
		return d.Errf(ErrCorrupted, "handle index %d", p.Index)
	}
	p.Obj = nil
	c.handles = append(c.handles, p)
	return nil
}

func (p *Handle) encode(c *encoder, bb *packed.Builder) error {
	idx := p.Index
	if p.Obj != nil {
		if c.handles == nil {
			return fmt.Errorf("handle to %s outside of a package", p.Obj.TypeName())
		}
		var ok bool
		idx, ok = c.handles.Index(p.Obj)
		if !ok {
			return fmt.Errorf("handle to %s object that is not part of the package", p.Obj.TypeName())
		}
	}
	bb.AppendI32(idx)
	return nil
}

// HandleTable maps objects to their handle indices and back. It is rebuilt
// for every decode and encode.
type HandleTable struct {
	objs  []*Object
	index map[*Object]int32
}

func NewHandleTable(objs []*Object) *HandleTable {
	t := &HandleTable{
		objs:  objs,
		index: make(map[*Object]int32, len(objs)),
	}
	for i, o := range objs {
		if _, dup := t.index[o]; !dup {
			t.index[o] = int32(i)
		}
	}
	return t
}

func (t *HandleTable) Len() int {
	return len(t.objs)
}

func (t *HandleTable) Object(idx int32) (*Object, bool) {
	if idx < 0 || int(idx) >= len(t.objs) {
		return nil, false
	}
	return t.objs[idx], true
}

func (t *HandleTable) Index(o *Object) (int32, bool) {
	idx, ok := t.index[o]
	return idx, ok
}

// resolve points every handle at its object.
func (t *HandleTable) resolve(handles []*Handle) error {
	for _, h := range handles {
		if h.Index < 0 {
			continue
		}
		o, ok := t.Object(h.Index)
		if !ok {
			return corruptf("handle index %d out of range (%d objects)", h.Index, len(t.objs))
		}
		h.Obj = o
	}
	return nil
}
