package packed

import (
	"encoding/binary"
	"io"
	"math"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

// Builder accumulates little-endian binary output. Reserved regions can be
// backpatched later via the Put*At methods.
type Builder struct {
	Buf []byte
}

var _ io.Writer = (*Builder)(nil)

func (bb *Builder) Len() int {
	return len(bb.Buf)
}

func (bb *Builder) EnsureExtra(n int) {
	bb.Buf = ensureCapacity(bb.Buf, len(bb.Buf)+n)
}

// Grow appends n zero bytes and returns the offset of the first one.
func (bb *Builder) Grow(n int) (off int) {
	off, bb.Buf = grow(bb.Buf, n)
	clear(bb.Buf[off:])
	return
}

func (bb *Builder) Trim(off int) {
	bb.Buf = bb.Buf[:off]
}

func (bb *Builder) Write(b []byte) (int, error) {
	off, buf := grow(bb.Buf, len(b))
	copy(buf[off:], b)
	bb.Buf = buf
	return len(b), nil
}

func (bb *Builder) WriteByte(v byte) error {
	bb.AppendU8(v)
	return nil
}

func (bb *Builder) AppendRaw(b []byte) {
	_, _ = bb.Write(b)
}

func (bb *Builder) AppendU8(v uint8) {
	off := bb.Grow(1)
	bb.Buf[off] = v
}

func (bb *Builder) AppendU16(v uint16) {
	off := bb.Grow(2)
	binary.LittleEndian.PutUint16(bb.Buf[off:], v)
}

func (bb *Builder) AppendU32(v uint32) {
	off := bb.Grow(4)
	binary.LittleEndian.PutUint32(bb.Buf[off:], v)
}

func (bb *Builder) AppendI32(v int32) {
	bb.AppendU32(uint32(v))
}

func (bb *Builder) AppendU64(v uint64) {
	off := bb.Grow(8)
	binary.LittleEndian.PutUint64(bb.Buf[off:], v)
}

func (bb *Builder) AppendF32(v float32) {
	bb.AppendU32(math.Float32bits(v))
}

func (bb *Builder) AppendF64(v float64) {
	bb.AppendU64(math.Float64bits(v))
}

func (bb *Builder) AppendPackedInt(v int64) {
	bb.Buf = AppendPackedInt(bb.Buf, v)
}

func (bb *Builder) AppendPrefixedString(s string) {
	bb.Buf = AppendPrefixedString(bb.Buf, s)
}

func (bb *Builder) PutU16At(off int, v uint16) {
	binary.LittleEndian.PutUint16(bb.Buf[off:], v)
}

func (bb *Builder) PutU32At(off int, v uint32) {
	binary.LittleEndian.PutUint32(bb.Buf[off:], v)
}

// Decoder is a bounds-checked little-endian cursor over a byte slice. Every
// short read returns a *DataError pointing at the failing offset.
type Decoder struct {
	Orig []byte
	Buf  []byte
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf, buf}
}

func MakeDecoder(buf []byte) Decoder {
	return Decoder{buf, buf}
}

func (d *Decoder) Off() int {
	return len(d.Orig) - len(d.Buf)
}

func (d *Decoder) Len() int {
	return len(d.Orig)
}

func (d *Decoder) Remaining() int {
	return len(d.Buf)
}

func (d *Decoder) EOF() bool {
	return len(d.Buf) == 0
}

func (d *Decoder) Errf(err error, format string, args ...any) error {
	return DataErrf(d.Orig, d.Off(), err, format, args...)
}

func (d *Decoder) Seek(off int) error {
	if off < 0 || off > len(d.Orig) {
		return d.Errf(nil, "seek to %d outside of %d-byte buffer", off, len(d.Orig))
	}
	d.Buf = d.Orig[off:]
	return nil
}

func (d *Decoder) Raw(n int) ([]byte, error) {
	if n < 0 || len(d.Buf) < n {
		return nil, d.Errf(nil, "not enough data: %d bytes remaining, %d wanted", len(d.Buf), n)
	}
	v := d.Buf[:n:n]
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *Decoder) Skip(n int) error {
	_, err := d.Raw(n)
	return err
}

// Sub returns a decoder over Orig[off:off+n] without moving d.
func (d *Decoder) Sub(off, n int) (*Decoder, error) {
	if off < 0 || n < 0 || off+n > len(d.Orig) {
		return nil, d.Errf(nil, "range [%d, %d) outside of %d-byte buffer", off, off+n, len(d.Orig))
	}
	return NewDecoder(d.Orig[off : off+n : off+n]), nil
}

// Window returns a decoder positioned at off that cannot read past off+n.
// Unlike Sub, offsets reported by the window stay relative to d.Orig.
func (d *Decoder) Window(off, n int) (*Decoder, error) {
	if off < 0 || n < 0 || off+n > len(d.Orig) {
		return nil, d.Errf(nil, "range [%d, %d) outside of %d-byte buffer", off, off+n, len(d.Orig))
	}
	end := off + n
	return &Decoder{d.Orig[:end:end], d.Orig[off:end:end]}, nil
}

// Take returns a window over the next n bytes and advances d past them.
func (d *Decoder) Take(n int) (*Decoder, error) {
	w, err := d.Window(d.Off(), n)
	if err != nil {
		return nil, err
	}
	d.Buf = d.Buf[n:]
	return w, nil
}

func (d *Decoder) U8() (uint8, error) {
	b, err := d.Raw(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) U16() (uint16, error) {
	b, err := d.Raw(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) U32() (uint32, error) {
	b, err := d.Raw(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) I32() (int32, error) {
	v, err := d.U32()
	return int32(v), err
}

func (d *Decoder) U64() (uint64, error) {
	b, err := d.Raw(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) F32() (float32, error) {
	v, err := d.U32()
	return math.Float32frombits(v), err
}

func (d *Decoder) F64() (float64, error) {
	v, err := d.U64()
	return math.Float64frombits(v), err
}

func (d *Decoder) PackedInt() (int64, error) {
	v, n, err := ReadPackedInt(d.Buf)
	if err != nil {
		return 0, d.Errf(err, "invalid packed int")
	}
	d.Buf = d.Buf[n:]
	return v, nil
}

func (d *Decoder) PrefixedString() (string, error) {
	start := d.Buf
	s, err := ReadPrefixedString(d)
	if err != nil {
		d.Buf = start
		return "", err
	}
	return s, nil
}
