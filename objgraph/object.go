package objgraph

import (
	"fmt"
	"slices"

	"github.com/andreyvit/csav/packed"
)

type Field struct {
	Name string
	Prop Property
}

// Object is one instance of an object type. It holds only the fields that
// were present on disk or set since; the blueprint decides their order.
type Object struct {
	typ    string
	bp     *Blueprint
	fields []Field
}

func (o *Object) TypeName() string      { return o.typ }
func (o *Object) Kind() Kind            { return KindObject }
func (o *Object) Blueprint() *Blueprint { return o.bp }
func (o *Object) Len() int              { return len(o.fields) }

func (o *Object) String() string {
	return fmt.Sprintf("%s{%d fields}", o.typ, len(o.fields))
}

// Fields returns the object's fields in blueprint order.
func (o *Object) Fields() []Field {
	result := slices.Clone(o.fields)
	slices.SortStableFunc(result, func(a, b Field) int {
		return o.bp.Index(a.Name) - o.bp.Index(b.Name)
	})
	return result
}

// Field returns the named property, or nil.
func (o *Object) Field(name string) Property {
	if i := o.find(name); i >= 0 {
		return o.fields[i].Prop
	}
	return nil
}

// Set adds or replaces a field. Fields unknown to the blueprint are appended
// to it.
func (o *Object) Set(name string, p Property) {
	o.bp.ensure(FieldDef{Name: name, TypeName: p.TypeName()})
	if i := o.find(name); i >= 0 {
		o.fields[i].Prop = p
		return
	}
	o.fields = append(o.fields, Field{name, p})
}

// Delete removes a field; it will be skipped when encoding.
func (o *Object) Delete(name string) {
	if i := o.find(name); i >= 0 {
		o.fields = slices.Delete(o.fields, i, i+1)
	}
}

func (o *Object) find(name string) int {
	for i, f := range o.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// decode reads a nested object: u32 size, then the object data.
func (o *Object) decode(c *decoder, d *packed.Decoder) error {
	size, err := d.U32()
	if err != nil {
		return err
	}
	w, err := d.Take(int(size))
	if err != nil {
		return err
	}
	return c.object(o, w)
}

func (o *Object) encode(c *encoder, bb *packed.Builder) error {
	sizeOff := bb.Grow(4)
	if err := c.object(bb, o); err != nil {
		return err
	}
	bb.PutU32At(sizeOff, uint32(bb.Len()-sizeOff-4))
	return nil
}

const fieldDescriptorSize = 8

type diskField struct {
	name string
	typ  string
	off  int // absolute
}

// object decodes object data filling the whole window d.
func (c *decoder) object(o *Object, d *packed.Decoder) error {
	start, end := d.Off(), d.Len()
	count, err := d.U16()
	if err != nil {
		return err
	}
	if int(count)*fieldDescriptorSize > d.Remaining() {
		return d.Errf(ErrCorrupted, "%s: %d field descriptors do not fit", o.typ, count)
	}
	payloadStart := d.Off() + int(count)*fieldDescriptorSize

	fields := make([]diskField, count)
	defs := make([]FieldDef, count)
	for i := range fields {
		f := &fields[i]
		if f.name, err = c.poolString(d); err != nil {
			return err
		}
		if f.typ, err = c.poolString(d); err != nil {
			return err
		}
		rel, _ := d.U32()
		f.off = start + int(rel)

		switch {
		case i == 0 && f.off != payloadStart:
			return d.Errf(ErrCorrupted, "%s.%s: first field at +%d, wanted +%d", o.typ, f.name, rel, payloadStart-start)
		case i > 0 && f.off < fields[i-1].off:
			return d.Errf(ErrCorrupted, "%s.%s: field offset +%d decreases", o.typ, f.name, rel)
		case f.off > end:
			return d.Errf(ErrCorrupted, "%s.%s: field offset +%d past object end +%d", o.typ, f.name, rel, end-start)
		}
		for _, prev := range fields[:i] {
			if prev.name == f.name {
				return d.Errf(ErrCorrupted, "%s.%s: duplicate field", o.typ, f.name)
			}
		}
		defs[i] = FieldDef{f.name, f.typ}
	}
	if count == 0 && end != payloadStart {
		return d.Errf(ErrCorrupted, "%s: %d bytes in an object without fields", o.typ, end-payloadStart)
	}

	c.extend(o, defs)

	for i, f := range fields {
		fend := end
		if i+1 < len(fields) {
			fend = fields[i+1].off
		}
		mark := len(c.handles)
		p, err := c.field(f, d, fend)
		if err != nil {
			if i+1 < len(fields) {
				return &FieldError{Type: o.typ, Field: f.name, Off: f.off, Err: err}
			}
			c.handles = c.handles[:mark]
			w, _ := d.Window(f.off, fend-f.off)
			p = &Opaque{typ: f.typ, Raw: slices.Clone(w.Buf), Cause: err}
			c.fallback(o, f, err)
		}
		o.fields = append(o.fields, Field{f.name, p})
	}
	d.Buf = d.Buf[len(d.Buf):]
	return nil
}

func (c *decoder) field(f diskField, d *packed.Decoder, fend int) (Property, error) {
	p, err := c.newProperty(f.typ)
	if err != nil {
		return nil, err
	}
	w, err := d.Window(f.off, fend-f.off)
	if err != nil {
		return nil, err
	}
	if err := c.property(p, w); err != nil {
		return nil, err
	}
	if !w.EOF() {
		return nil, w.Errf(ErrCorrupted, "%d unused bytes", w.Remaining())
	}
	return p, nil
}

// object encodes o's data (without a size prefix).
func (c *encoder) object(bb *packed.Builder, o *Object) error {
	fields := o.Fields()
	if len(fields) > 0xFFFF {
		return fmt.Errorf("%s: %d fields", o.typ, len(fields))
	}
	start := bb.Len()
	bb.AppendU16(uint16(len(fields)))
	descOff := bb.Grow(fieldDescriptorSize * len(fields))
	for i, f := range fields {
		nameID, err := c.id16(f.Name)
		if err != nil {
			return &FieldError{Type: o.typ, Field: f.Name, Off: bb.Len(), Err: err}
		}
		typeID, err := c.id16(f.Prop.TypeName())
		if err != nil {
			return &FieldError{Type: o.typ, Field: f.Name, Off: bb.Len(), Err: err}
		}
		off := descOff + i*fieldDescriptorSize
		bb.PutU16At(off, nameID)
		bb.PutU16At(off+2, typeID)
		bb.PutU32At(off+4, uint32(bb.Len()-start))
		if err := f.Prop.encode(c, bb); err != nil {
			return &FieldError{Type: o.typ, Field: f.Name, Off: bb.Len(), Err: err}
		}
	}
	return nil
}
