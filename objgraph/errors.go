package objgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCorrupted          = errors.New("corrupted object package")
	ErrUnsupportedVersion = errors.New("unsupported object package version")

	// ErrUnknownFieldType reports a field type name no property kind
	// matches.
	ErrUnknownFieldType = errors.New("unknown field type")

	// ErrRoundTripMismatch reports that re-encoding a decoded package does
	// not reproduce the original bytes.
	ErrRoundTripMismatch = errors.New("round trip mismatch")
)

// FieldError locates a failure inside an object.
type FieldError struct {
	Type  string
	Field string
	Off   int
	Err   error
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func (e *FieldError) Error() string {
	var buf strings.Builder
	buf.WriteString("objgraph: ")
	buf.WriteString(e.Type)
	if e.Field != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Field)
	}
	fmt.Fprintf(&buf, " at 0x%x: ", e.Off)
	buf.WriteString(e.Err.Error())
	return buf.String()
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupted, fmt.Sprintf(format, args...))
}

// MismatchError reports the first byte at which a re-encoded package differs
// from its source.
type MismatchError struct {
	Off       int
	Object    int // index of the object containing Off, -1 if outside objects
	Type      string
	OrigLen   int
	EncodeLen int
}

func (e *MismatchError) Unwrap() error {
	return ErrRoundTripMismatch
}

func (e *MismatchError) Error() string {
	if e.Object >= 0 {
		return fmt.Sprintf("objgraph: %v at 0x%x in object %d (%s); %d bytes re-encoded as %d", ErrRoundTripMismatch, e.Off, e.Object, e.Type, e.OrigLen, e.EncodeLen)
	}
	return fmt.Sprintf("objgraph: %v at 0x%x; %d bytes re-encoded as %d", ErrRoundTripMismatch, e.Off, e.OrigLen, e.EncodeLen)
}
