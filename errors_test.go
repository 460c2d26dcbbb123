package csav

import (
	"errors"
	"strings"
	"testing"

	"github.com/andreyvit/csav/nodetree"
)

func TestFormatError(t *testing.T) {
	err := formatErrf("chunk table", 0x40, nil, "count %d", 3)
	if !errors.Is(err, ErrCorrupted) || !errors.Is(err, nodetree.ErrCorrupted) {
		t.Fatalf("err = %v, wanted ErrCorrupted", err)
	}
	if s := err.Error(); s != "csav: chunk table at 0x40: count 3: corrupted node tree" {
		t.Fatalf("err.Error() = %q", s)
	}

	err = formatErrf("header", -1, ErrUnsupportedVersion, "major 1")
	if errors.Is(err, ErrCorrupted) || !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("err = %v, wanted only ErrUnsupportedVersion", err)
	}
	if s := err.Error(); strings.Contains(s, " at ") {
		t.Fatalf("err.Error() = %q, wanted no offset", s)
	}

	fe := &FormatError{Section: "node table", Off: 8, Node: "inventory", Err: ErrCorrupted}
	if s := fe.Error(); !strings.Contains(s, `(node "inventory")`) {
		t.Fatalf("err.Error() = %q, wanted node name", s)
	}
}
