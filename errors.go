package csav

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andreyvit/csav/nodetree"
)

var (
	// ErrCorrupted reports a structural inconsistency in a save file. It is
	// the same value as nodetree.ErrCorrupted.
	ErrCorrupted = nodetree.ErrCorrupted

	// ErrUnsupportedVersion reports a header version combination this package
	// refuses to touch.
	ErrUnsupportedVersion = errors.New("unsupported save version")
)

// FormatError locates a container-level decoding failure.
type FormatError struct {
	Section string
	Off     int64
	Node    string
	Msg     string
	Err     error
}

func formatErrf(section string, off int64, err error, format string, args ...any) error {
	if err == nil {
		err = ErrCorrupted
	}
	return &FormatError{Section: section, Off: off, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func (e *FormatError) Error() string {
	var buf strings.Builder
	buf.WriteString("csav: ")
	buf.WriteString(e.Section)
	if e.Off >= 0 {
		fmt.Fprintf(&buf, " at 0x%x", e.Off)
	}
	if e.Node != "" {
		fmt.Fprintf(&buf, " (node %q)", e.Node)
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
