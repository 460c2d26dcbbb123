package objgraph

import (
	"math"
	"testing"
)

func TestInt_ranges(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		typ     string
		ok      []int64
		invalid []int64
	}{
		{"Int8", []int64{-128, 0, 127}, []int64{-129, 128}},
		{"Uint8", []int64{0, 255}, []int64{-1, 256}},
		{"Int16", []int64{-32768, 32767}, []int64{-32769, 32768}},
		{"Uint32", []int64{0, math.MaxUint32}, []int64{-1, math.MaxUint32 + 1}},
		{"Int64", []int64{math.MinInt64, math.MaxInt64}, nil},
	}
	for _, tt := range tests {
		p := prop[*Int](reg, tt.typ)
		for _, v := range tt.ok {
			if err := p.SetInt64(v); err != nil {
				t.Errorf("%s.SetInt64(%d) failed: %v", tt.typ, v, err)
			} else if a := p.Int64(); a != v {
				t.Errorf("%s.SetInt64(%d) read back %d", tt.typ, v, a)
			}
		}
		for _, v := range tt.invalid {
			if err := p.SetInt64(v); err == nil {
				t.Errorf("%s.SetInt64(%d) succeeded", tt.typ, v)
			}
		}
	}

	u := prop[*Int](reg, "Uint64")
	ensure(u.SetUint64(math.MaxUint64))
	if u.Uint64() != math.MaxUint64 || u.String() != "18446744073709551615" {
		t.Errorf("Uint64 max = %v", u)
	}
	i8 := prop[*Int](reg, "Int8")
	if err := i8.SetUint64(128); err == nil {
		t.Errorf("Int8.SetUint64(128) succeeded")
	}
	i8.raw = 0xFF
	if i8.Int64() != -1 || i8.Bits() != 8 || !i8.Signed() {
		t.Errorf("Int8 0xFF = %d", i8.Int64())
	}
}

func TestFloat_keepsBits(t *testing.T) {
	reg := NewRegistry()
	f := prop[*Float](reg, "Float")
	f.SetValue(1.5)
	if f.Value() != 1.5 || f.raw != 0x3FC00000 {
		t.Fatalf("Float 1.5 = %v / %08x", f.Value(), f.raw)
	}
	d := prop[*Float](reg, "Double")
	d.SetValue(-2)
	if d.Value() != -2 || d.raw != 0xC000000000000000 {
		t.Fatalf("Double -2 = %v / %016x", d.Value(), d.raw)
	}
}

func TestTweakDBID(t *testing.T) {
	id := TweakDBIDOf("Items.Preset_Katana")
	if id.V>>32 != uint64(len("Items.Preset_Katana")) {
		t.Fatalf("length byte = %d", id.V>>32)
	}
	if !id.Matches("Items.Preset_Katana") || id.Matches("Items.Preset_Knife") {
		t.Fatalf("Matches is wrong")
	}
	if TweakDBIDOf("").V != 0 {
		t.Fatalf("empty name id = %x", TweakDBIDOf("").V)
	}
}

func TestCName_Hash64(t *testing.T) {
	a, b := &CName{"Player"}, &CName{"Player"}
	if a.Hash64() != b.Hash64() || a.Hash64() == (&CName{"player"}).Hash64() {
		t.Fatalf("Hash64 not a function of the exact name")
	}
}
