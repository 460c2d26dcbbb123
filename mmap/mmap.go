// Package mmap maps save files into memory read-only and provides the
// durable-write primitive used when replacing them.
package mmap

import (
	"errors"
	"fmt"
	"os"
)

type Hint uint

const (
	// SequentialAccess requests aggressive read-ahead. Maps to MADV_SEQUENTIAL
	// on Unix.
	SequentialAccess Hint = 1 << 0

	// Prefault requests the entire file to be loaded up front. Maps to
	// MAP_POPULATE on Linux and is ignored elsewhere.
	Prefault Hint = 1 << 1
)

var ErrTooLarge = errors.New("file too large to map")

func (h Hint) Has(v Hint) bool {
	return h&v != 0
}

// Mapping is a read-only view of a whole file. Data must not be used after
// Close.
type Mapping struct {
	Data []byte
	f    *os.File
}

// Open maps the file at path. maxSize of 0 means MaxSize. Empty files yield an
// empty Data without an actual mapping.
func Open(path string, maxSize int64, hint Hint) (*Mapping, error) {
	if maxSize <= 0 || maxSize > MaxSize {
		maxSize = MaxSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size > maxSize {
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, path, size, maxSize)
	}
	m := &Mapping{f: f}
	if size == 0 {
		return m, nil
	}
	m.Data, err = mmap(f, int(size), hint)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return m, nil
}

func (m *Mapping) Close() error {
	var err error
	if m.Data != nil {
		err = munmap(m.Data)
		m.Data = nil
	}
	if m.f != nil {
		if e := m.f.Close(); err == nil {
			err = e
		}
		m.f = nil
	}
	return err
}
