package csav

import (
	"strings"
	"testing"
)

func TestHexstr(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
	a := hexAttr("k", make([]byte, 40))
	if v := a.Value.String(); !strings.HasSuffix(v, "...") || len(v) != 64+3 {
		t.Fatalf("hexAttr = %q, wanted 32 bytes and an ellipsis", v)
	}
}

func TestMagicString(t *testing.T) {
	tests := []struct {
		magic uint32
		want  string
	}{
		{MagicCSAV, "CSAV"},
		{MagicSAVE, "SAVE"},
		{MagicXLZ4, "XLZ4"},
		{MagicDONE, "DONE"},
		{0x00010203, "0x03020100"},
	}
	for _, tt := range tests {
		if got := magicString(tt.magic); got != tt.want {
			t.Errorf("magicString(%08x) = %q, wanted %q", tt.magic, got, tt.want)
		}
	}
}
