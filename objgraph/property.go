package objgraph

import (
	"fmt"
	"hash/crc32"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/csav/packed"
)

// Property is one typed field value. The set of implementations is closed:
// *Bool, *Int, *Float, *String, *CName, *TweakDBID, *Enum, *FixedArray,
// *DynArray, *Handle, *Object and *Opaque.
type Property interface {
	TypeName() string
	Kind() Kind

	// decode consumes the property's payload from d.
	decode(c *decoder, d *packed.Decoder) error
	encode(c *encoder, bb *packed.Builder) error
}

type Bool struct {
	V bool
}

func (p *Bool) TypeName() string { return "Bool" }
func (p *Bool) Kind() Kind       { return KindBool }
func (p *Bool) String() string   { return fmt.Sprint(p.V) }

func (p *Bool) decode(c *decoder, d *packed.Decoder) error {
	v, err := d.U8()
	if err != nil {
		return err
	}
	if v > 1 {
		return d.Errf(ErrCorrupted, "bool value %d", v)
	}
	p.V = v == 1
	return nil
}

func (p *Bool) encode(c *encoder, bb *packed.Builder) error {
	if p.V {
		bb.AppendU8(1)
	} else {
		bb.AppendU8(0)
	}
	return nil
}

// Int holds any of the fixed-width integer types. The raw bits are kept so
// that both signed and unsigned 64-bit values survive unchanged.
type Int struct {
	typ    string
	size   int
	signed bool
	raw    uint64
}

func newInt(ts typeSpec) *Int {
	return &Int{typ: ts.name, size: ts.size, signed: ts.signed}
}

func (p *Int) TypeName() string { return p.typ }
func (p *Int) Kind() Kind       { return KindInt }
func (p *Int) Signed() bool     { return p.signed }
func (p *Int) Bits() int        { return p.size * 8 }

func (p *Int) String() string {
	if p.signed {
		return fmt.Sprint(p.Int64())
	}
	return fmt.Sprint(p.Uint64())
}

// Int64 returns the value sign-extended according to the type.
func (p *Int) Int64() int64 {
	shift := 64 - 8*p.size
	if p.signed {
		return int64(p.raw<<shift) >> shift
	}
	return int64(p.raw)
}

func (p *Int) Uint64() uint64 {
	return p.raw
}

// SetInt64 stores v, failing if it doesn't fit the type.
func (p *Int) SetInt64(v int64) error {
	bits := 8 * p.size
	if p.signed {
		if bits < 64 && (v < -1<<(bits-1) || v >= 1<<(bits-1)) {
			return fmt.Errorf("%d does not fit %s", v, p.typ)
		}
		p.raw = uint64(v) & mask(bits)
		return nil
	}
	if v < 0 {
		return fmt.Errorf("%d does not fit %s", v, p.typ)
	}
	return p.SetUint64(uint64(v))
}

func (p *Int) SetUint64(v uint64) error {
	if v&^mask(8*p.size) != 0 || (p.signed && v > mask(8*p.size)>>1) {
		return fmt.Errorf("%d does not fit %s", v, p.typ)
	}
	p.raw = v
	return nil
}

func mask(bits int) uint64 {
	if bits >= 64 {
		return math.MaxUint64
	}
	return 1<<bits - 1
}

func (p *Int) decode(c *decoder, d *packed.Decoder) error {
	var err error
	switch p.size {
	case 1:
		var v uint8
		v, err = d.U8()
		p.raw = uint64(v)
	case 2:
		var v uint16
		v, err = d.U16()
		p.raw = uint64(v)
	case 4:
		var v uint32
		v, err = d.U32()
		p.raw = uint64(v)
	default:
		p.raw, err = d.U64()
	}
	return err
}

func (p *Int) encode(c *encoder, bb *packed.Builder) error {
	switch p.size {
	case 1:
		bb.AppendU8(uint8(p.raw))
	case 2:
		bb.AppendU16(uint16(p.raw))
	case 4:
		bb.AppendU32(uint32(p.raw))
	default:
		bb.AppendU64(p.raw)
	}
	return nil
}

// Float holds Float (32-bit) or Double values. The raw bits are kept so NaN
// payloads round-trip.
type Float struct {
	typ  string
	size int
	raw  uint64
}

func newFloat(ts typeSpec) *Float {
	return &Float{typ: ts.name, size: ts.size}
}

func (p *Float) TypeName() string { return p.typ }
func (p *Float) Kind() Kind       { return KindFloat }
func (p *Float) String() string   { return fmt.Sprint(p.Value()) }

func (p *Float) Value() float64 {
	if p.size == 4 {
		return float64(math.Float32frombits(uint32(p.raw)))
	}
	return math.Float64frombits(p.raw)
}

func (p *Float) SetValue(v float64) {
	if p.size == 4 {
		p.raw = uint64(math.Float32bits(float32(v)))
	} else {
		p.raw = math.Float64bits(v)
	}
}

func (p *Float) decode(c *decoder, d *packed.Decoder) error {
	if p.size == 4 {
		v, err := d.U32()
		p.raw = uint64(v)
		return err
	}
	v, err := d.U64()
	p.raw = v
	return err
}

func (p *Float) encode(c *encoder, bb *packed.Builder) error {
	if p.size == 4 {
		bb.AppendU32(uint32(p.raw))
	} else {
		bb.AppendU64(p.raw)
	}
	return nil
}

type String struct {
	V string
}

func (p *String) TypeName() string { return "String" }
func (p *String) Kind() Kind       { return KindString }
func (p *String) String() string   { return fmt.Sprintf("%q", p.V) }

func (p *String) decode(c *decoder, d *packed.Decoder) (err error) {
	p.V, err = d.PrefixedString()
	return
}

func (p *String) encode(c *encoder, bb *packed.Builder) error {
	bb.AppendPrefixedString(p.V)
	return nil
}

// CName is an interned name, stored as a string pool id.
type CName struct {
	Name string
}

func (p *CName) TypeName() string { return "CName" }
func (p *CName) Kind() Kind       { return KindCName }
func (p *CName) String() string   { return p.Name }

// Hash64 is the 64-bit identity of the name used by lookups outside the
// package.
func (p *CName) Hash64() uint64 {
	return xxhash.Sum64String(p.Name)
}

func (p *CName) decode(c *decoder, d *packed.Decoder) (err error) {
	p.Name, err = c.poolString(d)
	return
}

func (p *CName) encode(c *encoder, bb *packed.Builder) error {
	return c.poolID16(bb, p.Name)
}

// TweakDBID is a content-addressed record id: crc32 of the record name in the
// low 32 bits and the name length in the next 8.
type TweakDBID struct {
	V uint64
}

func TweakDBIDOf(name string) TweakDBID {
	return TweakDBID{uint64(crc32.ChecksumIEEE([]byte(name))) | uint64(len(name)&0xFF)<<32}
}

func (p *TweakDBID) TypeName() string { return "TweakDBID" }
func (p *TweakDBID) Kind() Kind       { return KindTweakDBID }
func (p *TweakDBID) String() string   { return fmt.Sprintf("tdbid:%010x", p.V) }

func (p *TweakDBID) Matches(name string) bool {
	return TweakDBIDOf(name).V == p.V&0xFF_FFFF_FFFF
}

func (p *TweakDBID) decode(c *decoder, d *packed.Decoder) (err error) {
	p.V, err = d.U64()
	return
}

func (p *TweakDBID) encode(c *encoder, bb *packed.Builder) error {
	bb.AppendU64(p.V)
	return nil
}

// Enum holds the name of one enumerator of a registered enum type.
type Enum struct {
	typ   string
	Value string
}

func (p *Enum) TypeName() string { return p.typ }
func (p *Enum) Kind() Kind       { return KindEnum }
func (p *Enum) String() string   { return p.typ + "." + p.Value }

func (p *Enum) decode(c *decoder, d *packed.Decoder) (err error) {
	p.Value, err = c.poolString(d)
	return
}

func (p *Enum) encode(c *encoder, bb *packed.Builder) error {
	return c.poolID16(bb, p.Value)
}

// Opaque keeps the raw bytes of a field that could not be decoded. It is
// only produced for the last field of an object.
type Opaque struct {
	typ   string
	Raw   []byte
	Cause error
}

func (p *Opaque) TypeName() string { return p.typ }
func (p *Opaque) Kind() Kind       { return KindOpaque }
func (p *Opaque) String() string   { return fmt.Sprintf("opaque(%s, %d bytes)", p.typ, len(p.Raw)) }

func (p *Opaque) decode(c *decoder, d *packed.Decoder) error {
	p.Raw = append([]byte(nil), d.Buf...)
	d.Buf = d.Buf[len(d.Buf):]
	return nil
}

func (p *Opaque) encode(c *encoder, bb *packed.Builder) error {
	bb.AppendRaw(p.Raw)
	return nil
}
