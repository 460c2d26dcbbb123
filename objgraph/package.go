package objgraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/andreyvit/csav/packed"
	"github.com/andreyvit/csav/strpool"
)

const (
	PackageVersion = 4

	packageHeaderSize = 20
	objectDescSize    = 8
)

// Package is a decoded object package. Objects form the handle arena: a
// handle with index i points at Objects[i]. The first RootCount objects are
// the roots.
type Package struct {
	Version   uint16
	Flags     uint16
	RootCount int
	Objects   []*Object

	pool *strpool.Pool

	// layout of the source, for locating round trip mismatches
	regionStart int
	offsets     []uint32
}

func NewPackage() *Package {
	return &Package{Version: PackageVersion, pool: strpool.New()}
}

func (p *Package) Roots() []*Object {
	return p.Objects[:min(p.RootCount, len(p.Objects))]
}

// Strings returns the package's string pool contents in id order.
func (p *Package) Strings() []string {
	return p.pool.Strings()
}

// DecodePackage decodes a package node's data. With o.Verify set it also
// re-encodes the package; on a mismatch both the package and a
// *MismatchError are returned.
func DecodePackage(data []byte, reg *Registry, o Options) (*Package, error) {
	o.fill()
	p, err := decodePackage(data, reg, o)
	if err != nil {
		return nil, asCorrupted(err)
	}
	if o.Verify {
		if err := p.Verify(data); err != nil {
			o.Logger.LogAttrs(o.Context, slog.LevelError, "objgraph: round trip mismatch", slog.Any("err", err))
			return p, err
		}
	}
	return p, nil
}

func decodePackage(data []byte, reg *Registry, o Options) (*Package, error) {
	c := newDecoder(reg, nil, o)
	p, err := c.pkg(data)
	if err != nil {
		c.rollback()
		return nil, err
	}
	return p, nil
}

func (c *decoder) pkg(data []byte) (*Package, error) {
	d := packed.NewDecoder(data)
	if len(data) < packageHeaderSize {
		return nil, d.Errf(ErrCorrupted, "package of %d bytes is too short", len(data))
	}
	p := &Package{}
	p.Version, _ = d.U16()
	if p.Version != PackageVersion {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, p.Version)
	}
	p.Flags, _ = d.U16()
	rootCount, _ := d.U32()
	descSize, _ := d.U32()
	dataSize, _ := d.U32()
	objCount, _ := d.U32()

	descs, err := d.Raw(int(descSize))
	if err != nil {
		return nil, err
	}
	strs, err := d.Raw(int(dataSize))
	if err != nil {
		return nil, err
	}
	p.pool, err = strpool.ReadFrom(descs, strs)
	if err != nil {
		return nil, err
	}
	c.pool = p.pool

	if uint64(objCount)*objectDescSize > uint64(d.Remaining()) {
		return nil, d.Errf(ErrCorrupted, "%d object descriptors do not fit", objCount)
	}
	if rootCount > objCount {
		return nil, d.Errf(ErrCorrupted, "%d roots among %d objects", rootCount, objCount)
	}
	p.RootCount = int(rootCount)

	p.Objects = make([]*Object, objCount)
	p.offsets = make([]uint32, objCount)
	for i := range p.Objects {
		typ, err := c.poolString32(d)
		if err != nil {
			return nil, err
		}
		ts, err := parseType(typ, c.reg.IsEnum)
		if err != nil || ts.kind != KindObject {
			return nil, d.Errf(ErrCorrupted, "object %d has non-object type %q", i, typ)
		}
		p.Objects[i] = c.newObject(typ)
		p.offsets[i], _ = d.U32()
	}

	p.regionStart = d.Off()
	regionLen := d.Remaining()
	for i, off := range p.offsets {
		switch {
		case i == 0 && off != 0:
			return nil, d.Errf(ErrCorrupted, "first object at +%d", off)
		case i > 0 && off < p.offsets[i-1]:
			return nil, d.Errf(ErrCorrupted, "object %d offset +%d decreases", i, off)
		case int64(off) > int64(regionLen):
			return nil, d.Errf(ErrCorrupted, "object %d offset +%d past end of data (%d bytes)", i, off, regionLen)
		}
	}
	if objCount == 0 && regionLen != 0 {
		return nil, d.Errf(ErrCorrupted, "%d bytes of data without objects", regionLen)
	}

	for i, obj := range p.Objects {
		end := regionLen
		if i+1 < len(p.offsets) {
			end = int(p.offsets[i+1])
		}
		w, err := d.Window(p.regionStart+int(p.offsets[i]), end-int(p.offsets[i]))
		if err != nil {
			return nil, err
		}
		if err := c.object(obj, w); err != nil {
			return nil, fmt.Errorf("object %d (%s): %w", i, obj.typ, err)
		}
	}

	if err := NewHandleTable(p.Objects).resolve(c.handles); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *decoder) poolString32(d *packed.Decoder) (string, error) {
	id, err := d.U32()
	if err != nil {
		return "", err
	}
	s, err := c.pool.At(int(id))
	if err != nil {
		return "", packed.DataErrf(d.Orig, d.Off()-4, ErrCorrupted, "%v", err)
	}
	return s, nil
}

// Encode serializes the package. Strings of the decoded pool keep their ids;
// new strings are appended.
func (p *Package) Encode() ([]byte, error) {
	if p.RootCount < 0 || p.RootCount > len(p.Objects) {
		return nil, fmt.Errorf("objgraph: %d roots among %d objects", p.RootCount, len(p.Objects))
	}
	pool := p.pool
	if pool == nil {
		pool = strpool.New()
	} else {
		pool = pool.Clone()
	}
	c := &encoder{pool: pool, handles: NewHandleTable(p.Objects)}

	var region packed.Builder
	offsets := make([]uint32, len(p.Objects))
	typeIDs := make([]uint32, len(p.Objects))
	for i, obj := range p.Objects {
		offsets[i] = uint32(region.Len())
		typeIDs[i] = uint32(pool.Insert(obj.typ))
		if err := c.object(&region, obj); err != nil {
			return nil, fmt.Errorf("objgraph: object %d (%s): %w", i, obj.typ, err)
		}
	}

	var bb packed.Builder
	bb.AppendU16(p.Version)
	bb.AppendU16(p.Flags)
	bb.AppendU32(uint32(p.RootCount))
	sizesOff := bb.Grow(8)
	bb.AppendU32(uint32(len(p.Objects)))
	var descSize, dataSize int
	bb.Buf, descSize, dataSize = pool.AppendTo(bb.Buf)
	bb.PutU32At(sizesOff, uint32(descSize))
	bb.PutU32At(sizesOff+4, uint32(dataSize))
	for i := range p.Objects {
		bb.AppendU32(typeIDs[i])
		bb.AppendU32(offsets[i])
	}
	bb.AppendRaw(region.Buf)
	return bb.Buf, nil
}

// Verify re-encodes p and compares the result with orig, the bytes p was
// decoded from.
func (p *Package) Verify(orig []byte) error {
	encoded, err := p.Encode()
	if err != nil {
		return err
	}
	return p.compare(orig, encoded)
}

func (p *Package) compare(orig, encoded []byte) error {
	n := min(len(orig), len(encoded))
	off := -1
	for i := range n {
		if orig[i] != encoded[i] {
			off = i
			break
		}
	}
	if off < 0 {
		if len(orig) == len(encoded) {
			return nil
		}
		off = n
	}
	e := &MismatchError{Off: off, Object: -1, OrigLen: len(orig), EncodeLen: len(encoded)}
	if rel := off - p.regionStart; rel >= 0 && p.regionStart > 0 {
		for i := len(p.offsets) - 1; i >= 0; i-- {
			if int(p.offsets[i]) <= rel {
				e.Object, e.Type = i, p.Objects[i].typ
				break
			}
		}
	}
	return e
}

// VerifyRoundTrip decodes data and checks that re-encoding reproduces it.
func VerifyRoundTrip(data []byte, reg *Registry, o Options) error {
	o.Verify = false
	p, err := DecodePackage(data, reg, o)
	if err != nil {
		return err
	}
	return p.Verify(data)
}

// asCorrupted makes short reads and other structural failures match
// ErrCorrupted.
func asCorrupted(err error) error {
	switch {
	case errors.Is(err, ErrCorrupted), errors.Is(err, ErrUnknownFieldType), errors.Is(err, ErrUnsupportedVersion):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
}
