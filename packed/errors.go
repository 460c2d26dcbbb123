package packed

import (
	"fmt"
)

// DataError describes malformed binary input. It carries the buffer being
// decoded and the offset at which decoding failed.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func DataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at 0x%x: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at 0x%x: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at 0x%x: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at 0x%x: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}
