// Package strpool implements the deduplicating string table embedded in
// object packages.
//
// Ids are assigned in insertion order and never change. A separate sorted
// permutation of ids gives O(log n) lookups.
//
// On-disk layout: a descriptor table of 8 bytes per entry
// (typeHash:32 length:32) followed by the concatenated string bytes.
// typeHash is opaque to readers: hashes read from disk are kept and written
// back unchanged, and only newly inserted strings get the low half of their
// xxhash64.
package strpool

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/csav/packed"
)

const DescriptorSize = 8

var ErrOutOfRange = errors.New("string pool id out of range")

type Pool struct {
	strs   []string
	hashes []uint32
	sorted []int // ids ordered by compare
}

func New() *Pool {
	return &Pool{}
}

// compare orders case-insensitively first, then bytewise, so that strings
// differing only in case still get distinct, stable slots.
func compare(a, b string) int {
	if c := compareFold(a, b); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func compareFold(a, b string) int {
	n := min(len(a), len(b))
	for i := range n {
		ca, cb := lower(a[i]), lower(b[i])
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

func (p *Pool) search(s string) (pos int, found bool) {
	pos = sort.Search(len(p.sorted), func(i int) bool {
		return compare(p.strs[p.sorted[i]], s) >= 0
	})
	found = pos < len(p.sorted) && p.strs[p.sorted[pos]] == s
	return
}

// Insert returns the id of s, adding it if it isn't in the pool yet.
func (p *Pool) Insert(s string) int {
	pos, found := p.search(s)
	if found {
		return p.sorted[pos]
	}
	return p.insertAt(pos, s, TypeHash(s))
}

func (p *Pool) insertAt(pos int, s string, hash uint32) int {
	id := len(p.strs)
	p.strs = append(p.strs, s)
	p.hashes = append(p.hashes, hash)
	p.sorted = append(p.sorted, 0)
	copy(p.sorted[pos+1:], p.sorted[pos:])
	p.sorted[pos] = id
	return id
}

func (p *Pool) Find(s string) (int, bool) {
	pos, found := p.search(s)
	if !found {
		return -1, false
	}
	return p.sorted[pos], true
}

func (p *Pool) Contains(s string) bool {
	_, found := p.search(s)
	return found
}

func (p *Pool) At(id int) (string, error) {
	if id < 0 || id >= len(p.strs) {
		return "", fmt.Errorf("%w: %d (pool has %d entries)", ErrOutOfRange, id, len(p.strs))
	}
	return p.strs[id], nil
}

func (p *Pool) Len() int {
	return len(p.strs)
}

// Clone returns an independent copy with the same ids.
func (p *Pool) Clone() *Pool {
	return &Pool{
		strs:   append([]string(nil), p.strs...),
		hashes: append([]uint32(nil), p.hashes...),
		sorted: append([]int(nil), p.sorted...),
	}
}

// Strings returns the pooled strings in id order.
func (p *Pool) Strings() []string {
	return append([]string(nil), p.strs...)
}

// Hash returns the type hash stored for id.
func (p *Pool) Hash(id int) (uint32, error) {
	if id < 0 || id >= len(p.hashes) {
		return 0, fmt.Errorf("%w: %d (pool has %d entries)", ErrOutOfRange, id, len(p.hashes))
	}
	return p.hashes[id], nil
}

// TypeHash is the hash given to strings inserted in memory.
func TypeHash(s string) uint32 {
	return uint32(xxhash.Sum64String(s))
}

// AppendTo serializes the pool, returning the sizes of both sections.
func (p *Pool) AppendTo(buf []byte) ([]byte, int, int) {
	bb := packed.Builder{Buf: buf}
	start := bb.Len()
	for i, s := range p.strs {
		bb.AppendU32(p.hashes[i])
		bb.AppendU32(uint32(len(s)))
	}
	descSize := bb.Len() - start
	for _, s := range p.strs {
		bb.AppendRaw([]byte(s))
	}
	return bb.Buf, descSize, bb.Len() - start - descSize
}

// ReadFrom decodes a pool from its descriptor and data sections. Stored
// hashes are not checked against the strings.
func ReadFrom(descs, data []byte) (*Pool, error) {
	if len(descs)%DescriptorSize != 0 {
		return nil, packed.DataErrf(descs, 0, nil, "string pool descriptor section size %d is not a multiple of %d", len(descs), DescriptorSize)
	}
	n := len(descs) / DescriptorSize
	p := &Pool{
		strs:   make([]string, 0, n),
		hashes: make([]uint32, 0, n),
		sorted: make([]int, 0, n),
	}
	d := packed.NewDecoder(descs)
	var consumed int
	for i := range n {
		hash, err := d.U32()
		if err != nil {
			return nil, err
		}
		size, err := d.U32()
		if err != nil {
			return nil, err
		}
		if int64(consumed)+int64(size) > int64(len(data)) {
			return nil, packed.DataErrf(descs, d.Off()-DescriptorSize, nil, "string %d of %d bytes overruns %d-byte data section at %d", i, size, len(data), consumed)
		}
		s := string(data[consumed : consumed+int(size)])
		consumed += int(size)
		pos, found := p.search(s)
		if found {
			return nil, packed.DataErrf(descs, d.Off()-DescriptorSize, nil, "string %d %q duplicates string %d", i, s, p.sorted[pos])
		}
		p.insertAt(pos, s, hash)
	}
	if consumed != len(data) {
		return nil, packed.DataErrf(data, consumed, nil, "string pool data section has %d trailing bytes", len(data)-consumed)
	}
	return p, nil
}
