// Package csavtest contains helpers shared by the tests of csav packages: a
// compact hex DSL for expected byte layouts, a hexdump-based byte comparison,
// and a slog logger that writes to the test log.
package csavtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/andreyvit/csav/packed"
)

// Logger returns a debug-level text logger that writes into t.Log.
func Logger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(&logWriter{t}, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
	}))
}

type logWriter struct{ t testing.TB }

func (c *logWriter) Write(buf []byte) (int, error) {
	msg := string(buf)
	origLen := len(msg)
	msg = strings.TrimSuffix(msg, "\n")
	c.t.Log(msg)
	return origLen, nil
}

// Expand turns a whitespace-separated byte spec into bytes. Elements:
//
//   - 01_02 or 0102: hex bytes
//   - 'text: raw ASCII
//   - #-12: packed int
//   - %12: little-endian u32
//   - $text: UTF-8 prefixed string
//   - x*N: element repeated N times
//   - x..: zero-padded to 4 bytes; x...: zero-padded to 8 bytes
//   - x/comment: the part after the slash is ignored
func Expand(specs ...string) []byte {
	var b []byte
	for _, spec := range specs {
		for _, elem := range strings.Fields(spec) {
			base, _, _ := strings.Cut(elem, "/")
			if base == "" {
				continue
			}

			base, repStr, _ := strings.Cut(base, "*")

			rep := 1
			if repStr != "" {
				var err error
				rep, err = strconv.Atoi(repStr)
				if err != nil {
					panic(fmt.Sprintf("invalid repeat count %q in element %q", repStr, elem))
				}
			}

			base, right, padTo8 := strings.Cut(base, "...")
			var padTo4 bool
			if !padTo8 {
				base, right, padTo4 = strings.Cut(base, "..")
			}

			baseBytes, err := appendElement(nil, base)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}

			rightBytes, err := appendElement(nil, right)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}

			for range rep {
				b = append(b, baseBytes...)

				n := len(baseBytes) + len(rightBytes)
				if padTo8 && n < 8 {
					for range 8 - n {
						b = append(b, 0)
					}
				} else if padTo4 && n < 4 {
					for range 4 - n {
						b = append(b, 0)
					}
				}

				b = append(b, rightBytes...)
			}
		}
	}
	return b
}

func appendElement(data []byte, hex string) ([]byte, error) {
	const none byte = 0xFF

	if decimal, ok := strings.CutPrefix(hex, "#"); ok {
		v, err := strconv.ParseInt(decimal, 10, 64)
		if err != nil {
			return nil, err
		}
		return packed.AppendPackedInt(data, v), nil
	} else if decimal, ok := strings.CutPrefix(hex, "%"); ok {
		v, err := strconv.ParseUint(decimal, 10, 32)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint32(data, uint32(v)), nil
	} else if alpha, ok := strings.CutPrefix(hex, "'"); ok {
		return append(data, alpha...), nil
	} else if str, ok := strings.CutPrefix(hex, "$"); ok {
		return packed.AppendPrefixedString(data, str), nil
	}

	prev := none
	for _, b := range []byte(hex) {
		var half byte
		switch b {
		case '_', ' ':
			if prev != none {
				data = append(data, prev)
				prev = none
			}
			continue
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			half = b - '0'
		case 'a', 'b', 'c', 'd', 'e', 'f':
			half = b - 'a' + 10
		case 'A', 'B', 'C', 'D', 'E', 'F':
			half = b - 'A' + 10
		default:
			return nil, fmt.Errorf("invalid char '%c'", b)
		}
		if prev == none {
			prev = half
		} else {
			data = append(data, prev<<4|half)
			prev = none
		}
	}
	if prev != none {
		data = append(data, prev)
	}
	return data, nil
}

func HexDump(b []byte, highlightOff int) string {
	var buf strings.Builder
	var off int
	n := len(b)
	for {
		fmt.Fprintf(&buf, "%08x", off)
		if off >= n {
			buf.WriteByte('\n')
			break
		}
		buf.WriteByte(' ')
		for i := range 16 {
			if off+i >= n {
				buf.WriteString("   ")
			} else {
				if highlightOff >= 0 && off+i == highlightOff {
					buf.WriteByte('>')
				} else {
					buf.WriteByte(' ')
				}
				fmt.Fprintf(&buf, "%02x", b[off+i])
			}
		}
		buf.WriteString("  |")
		for i := range 16 {
			if off+i < n {
				v := b[off+i]
				if v >= 32 && v <= 126 {
					buf.WriteByte(v)
				} else {
					buf.WriteByte('.')
				}
			}
		}
		off += 16
		buf.WriteByte('|')
		buf.WriteByte('\n')
		if off >= n {
			break
		}
	}
	return buf.String()
}

func BytesEq(t testing.TB, a, e []byte) bool {
	if !bytes.Equal(a, e) {
		an, en := len(a), len(e)
		off := min(an, en)
		for i := range min(an, en) {
			if a[i] != e[i] {
				off = i
				break
			}
		}

		t.Helper()
		t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference offset: 0x%x (%d)", HexDump(a, off), HexDump(e, off), off, off)
		return false
	}
	return true
}
