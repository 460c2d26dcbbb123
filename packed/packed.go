// Package packed implements the primitive encodings shared by every layer of
// the save format: a 1 to 5 byte variable-length signed integer and a
// length-prefixed string.
//
// Packed integer layout:
//
//   - byte 0: sign:1 more:1 value:6
//   - bytes 1..4: more:1 value:7
//
// The magnitude is stored least significant bits first; the sign bit of byte
// 0 applies to the whole value. At most 34 value bits fit.
//
// Prefixed strings start with a packed length. A negative length -n means
// n bytes of UTF-8 follow; a non-negative length n means n UTF-16LE code units
// follow. Writers always emit the UTF-8 form.
package packed

import (
	"errors"
	"fmt"
	"unicode/utf16"
)

const (
	MaxPackedIntLen = 5

	// MaxPackedMagnitude is the largest absolute value a packed int can hold.
	MaxPackedMagnitude = 1<<34 - 1

	signBit      = 0x80
	firstMoreBit = 0x40
	firstMask    = 0x3F
	moreBit      = 0x80
	mask         = 0x7F
)

var (
	ErrPackedIntTooLong = errors.New("packed int longer than 5 bytes")
	ErrTruncated        = errors.New("truncated input")
)

// ReadPackedInt decodes a packed int from the start of buf, returning the
// value and the number of bytes consumed.
func ReadPackedInt(buf []byte) (int64, int, error) {
	if len(buf) == 0 {
		return 0, 0, ErrTruncated
	}
	b := buf[0]
	neg := b&signBit != 0
	v := int64(b & firstMask)
	n := 1
	more := b&firstMoreBit != 0
	shift := 6
	for more {
		if n >= MaxPackedIntLen {
			return 0, n, ErrPackedIntTooLong
		}
		if n >= len(buf) {
			return 0, n, ErrTruncated
		}
		b = buf[n]
		n++
		v |= int64(b&mask) << shift
		shift += 7
		more = b&moreBit != 0
	}
	if neg {
		v = -v
	}
	return v, n, nil
}

// AppendPackedInt appends the packed encoding of v. It panics if |v| exceeds
// MaxPackedMagnitude.
func AppendPackedInt(buf []byte, v int64) []byte {
	var first byte
	a := v
	if v < 0 {
		first = signBit
		a = -v
	}
	if a > MaxPackedMagnitude || a < 0 {
		panic(fmt.Errorf("packed int out of range: %d", v))
	}
	first |= byte(a & firstMask)
	a >>= 6
	if a != 0 {
		first |= firstMoreBit
	}
	buf = append(buf, first)
	for a != 0 {
		b := byte(a & mask)
		a >>= 7
		if a != 0 {
			b |= moreBit
		}
		buf = append(buf, b)
	}
	return buf
}

// PackedIntLen returns the encoded size of v.
func PackedIntLen(v int64) int {
	if v < 0 {
		v = -v
	}
	n := 1
	for v >>= 6; v != 0; v >>= 7 {
		n++
	}
	return n
}

// ReadPrefixedString decodes a length-prefixed string, accepting both the
// UTF-8 and the UTF-16LE forms.
func ReadPrefixedString(d *Decoder) (string, error) {
	n, err := d.PackedInt()
	if err != nil {
		return "", err
	}
	if n < 0 {
		raw, err := d.Raw(int(-n))
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	if n > int64(d.Remaining()/2) {
		return "", d.Errf(ErrTruncated, "utf-16 string of %d units does not fit", n)
	}
	raw, err := d.Raw(int(n) * 2)
	if err != nil {
		return "", err
	}
	units := make([]uint16, n)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}

// AppendPrefixedString appends s in the UTF-8 form (negative length prefix).
func AppendPrefixedString(buf []byte, s string) []byte {
	buf = AppendPackedInt(buf, -int64(len(s)))
	return append(buf, s...)
}

// AppendUTF16PrefixedString appends s in the legacy UTF-16LE form. Writers of
// the save format never use it; it exists to produce decoder test input.
func AppendUTF16PrefixedString(buf []byte, s string) []byte {
	units := utf16.Encode([]rune(s))
	buf = AppendPackedInt(buf, int64(len(units)))
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}
	return buf
}
