package csav

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/andreyvit/csav/packed"
	"github.com/pierrec/lz4/v4"
)

const (
	// ChunkSize is the amount of decompressed data per chunk.
	ChunkSize = 262144

	chunkDescriptorSize = 12
	chunkHeaderSize     = 8 // 'XLZ4' + decompressed size
	chunkTableHeadSize  = 8 // 'CLZF' + count
)

type ChunkDescriptor struct {
	FileOffset       uint32
	CompressedSize   uint32
	DecompressedSize uint32

	// BufferOffset is derived on decode and never stored.
	BufferOffset uint32
}

func (c ChunkDescriptor) String() string {
	return fmt.Sprintf("chunk@0x%x(%d->%d, buf 0x%x)", c.FileOffset, c.CompressedSize, c.DecompressedSize, c.BufferOffset)
}

// reservedTableSize is the room the writer leaves for the chunk table of a
// buffer of the given size.
func reservedTableSize(size int) int {
	return chunkTableHeadSize + chunkDescriptorSize*(lz4.CompressBlockBound(size)/ChunkSize+2)
}

// layoutChunks returns a copy of chunks sorted by file offset, with
// BufferOffset assigned as a running sum anchored at the smallest file
// offset. The anchor is also returned as base.
func layoutChunks(chunks []ChunkDescriptor) (sorted []ChunkDescriptor, base uint32, err error) {
	sorted = slices.Clone(chunks)
	slices.SortStableFunc(sorted, func(a, b ChunkDescriptor) int {
		return cmp.Compare(a.FileOffset, b.FileOffset)
	})
	if len(sorted) == 0 {
		return sorted, 0, nil
	}
	base = sorted[0].FileOffset
	cur := uint64(base)
	for i := range sorted {
		sorted[i].BufferOffset = uint32(cur)
		cur += uint64(sorted[i].DecompressedSize)
		if cur > math.MaxUint32 {
			return nil, 0, formatErrf("chunk table", -1, nil, "chunk %d ends past 32-bit buffer offsets", i)
		}
	}
	return sorted, base, nil
}

// CompressChunks splits buf into ChunkSize pieces and compresses each one
// independently into the on-disk chunk form ('XLZ4' tag, size, LZ4 block).
// The chunks are laid out back to back starting at fileOffset; the returned
// descriptors point there, and the returned bytes are what goes there.
func CompressChunks(buf []byte, fileOffset uint32) ([]ChunkDescriptor, []byte, error) {
	n := (len(buf) + ChunkSize - 1) / ChunkSize
	chunks := make([]ChunkDescriptor, 0, n)
	var bb packed.Builder
	bb.EnsureExtra(lz4.CompressBlockBound(len(buf)) + n*chunkHeaderSize)

	var c lz4.Compressor
	for start := 0; start < len(buf); start += ChunkSize {
		src := buf[start:min(start+ChunkSize, len(buf))]
		off := uint64(fileOffset) + uint64(bb.Len())

		bb.AppendU32(MagicXLZ4)
		bb.AppendU32(uint32(len(src)))
		payloadOff := bb.Len()
		bound := lz4.CompressBlockBound(len(src))
		bb.Grow(bound)
		written, err := c.CompressBlock(src, bb.Buf[payloadOff:])
		if err != nil {
			return nil, nil, fmt.Errorf("lz4 compress chunk %d: %w", len(chunks), err)
		}
		if written == 0 {
			panic("lz4 refused a bound-sized destination")
		}
		bb.Trim(payloadOff + written)

		end := uint64(fileOffset) + uint64(bb.Len())
		if end > math.MaxUint32 {
			return nil, nil, fmt.Errorf("compressed chunks end at 0x%x, past 32-bit file offsets", end)
		}
		chunks = append(chunks, ChunkDescriptor{
			FileOffset:       uint32(off),
			CompressedSize:   uint32(end - off),
			DecompressedSize: uint32(len(src)),
			BufferOffset:     fileOffset + uint32(start),
		})
	}
	return chunks, bb.Buf, nil
}

type chunkReader struct {
	ctx     context.Context
	file    []byte
	logger  *slog.Logger
	verbose bool
	report  func(v float64, comment string)
}

// DecompressChunks rebuilds the anchored buffer described by chunks from the
// raw file bytes. base is the file offset the first byte of the buffer is
// anchored at.
func DecompressChunks(file []byte, chunks []ChunkDescriptor, o Options) (buf []byte, base uint32, err error) {
	o.fill()
	r := &chunkReader{ctx: o.Context, file: file, logger: o.Logger, verbose: o.Verbose}
	return r.decompress(chunks)
}

func (r *chunkReader) decompress(chunks []ChunkDescriptor) ([]byte, uint32, error) {
	sorted, base, err := layoutChunks(chunks)
	if err != nil {
		return nil, 0, err
	}
	var total uint64
	for _, c := range sorted {
		total += uint64(c.DecompressedSize)
	}
	if total > uint64(len(r.file))*255+ChunkSize {
		// LZ4 cannot expand data by more than 255x; anything larger is garbage.
		return nil, 0, formatErrf("chunk table", -1, nil, "declared %d decompressed bytes for a %d-byte file", total, len(r.file))
	}
	buf := make([]byte, total)

	if len(sorted) > 0 && !hasXLZ4(r.file, sorted[0]) {
		if err := r.raw(sorted[0], buf); err != nil {
			return nil, 0, err
		}
		if r.report != nil {
			r.report(1, "copying")
		}
		return buf, base, nil
	}

	for i, c := range sorted {
		dst := buf[c.BufferOffset-base : c.BufferOffset-base+c.DecompressedSize]
		if err := r.chunk(i, c, dst); err != nil {
			return nil, 0, err
		}
		if r.verbose {
			r.logger.LogAttrs(r.ctx, slog.LevelDebug, "csav: chunk", slog.Int("i", i), slog.String("chunk", c.String()))
		}
		if r.report != nil {
			r.report(float64(i+1)/float64(len(sorted)), "decompressing")
		}
	}
	return buf, base, nil
}

func (r *chunkReader) chunk(i int, c ChunkDescriptor, dst []byte) error {
	start, end := uint64(c.FileOffset), uint64(c.FileOffset)+uint64(c.CompressedSize)
	if end > uint64(len(r.file)) {
		return formatErrf("chunk", int64(start), nil, "chunk %d [0x%x, 0x%x) past end of file 0x%x", i, start, end, len(r.file))
	}
	raw := r.file[start:end]

	if len(raw) < chunkHeaderSize || !hasXLZ4(r.file, c) {
		var tag []byte
		if len(raw) >= 4 {
			tag = raw[:4]
		}
		return formatErrf("chunk", int64(start), nil, "chunk %d has no XLZ4 tag (%s)", i, hexstr(tag))
	}

	if n := binary.LittleEndian.Uint32(raw[4:]); n != c.DecompressedSize {
		return formatErrf("chunk", int64(start), nil, "chunk %d declares %d decompressed bytes, table says %d", i, n, c.DecompressedSize)
	}
	n, err := lz4.UncompressBlock(raw[chunkHeaderSize:], dst)
	if err != nil {
		return formatErrf("chunk", int64(start), fmt.Errorf("%w: lz4: %w", ErrCorrupted, err), "chunk %d", i)
	}
	if n != len(dst) {
		return formatErrf("chunk", int64(start), nil, "chunk %d decompressed to %d bytes, wanted %d", i, n, len(dst))
	}
	return nil
}

func hasXLZ4(file []byte, c ChunkDescriptor) bool {
	start := uint64(c.FileOffset)
	return start+4 <= uint64(len(file)) && binary.LittleEndian.Uint32(file[start:]) == MagicXLZ4
}

// raw handles files whose first chunk has no XLZ4 tag: the whole buffer is
// then stored uncompressed starting at that chunk's offset.
func (r *chunkReader) raw(first ChunkDescriptor, buf []byte) error {
	start := uint64(first.FileOffset)
	end := start + uint64(len(buf))
	if end > uint64(len(r.file)) {
		return formatErrf("chunk", int64(start), nil, "uncompressed data of %d bytes past end of file 0x%x", len(buf), len(r.file))
	}
	r.logger.LogAttrs(r.ctx, slog.LevelInfo, "csav: uncompressed chunks", slog.Int("size", len(buf)), hexAttr("head", r.file[start:start+uint64(min(len(buf), 8))]))
	copy(buf, r.file[start:end])
	return nil
}

func readChunkTable(d *packed.Decoder) ([]ChunkDescriptor, error) {
	off := d.Off()
	magic, err := d.U32()
	if err != nil {
		return nil, err
	}
	if magic != MagicCLZF {
		return nil, formatErrf("chunk table", int64(off), nil, "bad magic %s", magicString(magic))
	}
	count, err := d.U32()
	if err != nil {
		return nil, err
	}
	if uint64(count)*chunkDescriptorSize > uint64(d.Remaining()) {
		return nil, formatErrf("chunk table", int64(off), nil, "%d chunks do not fit in %d remaining bytes", count, d.Remaining())
	}
	chunks := make([]ChunkDescriptor, count)
	for i := range chunks {
		c := &chunks[i]
		c.FileOffset, _ = d.U32()
		c.CompressedSize, _ = d.U32()
		c.DecompressedSize, _ = d.U32()
	}
	return chunks, nil
}

func putChunkTable(bb *packed.Builder, off int, chunks []ChunkDescriptor) {
	bb.PutU32At(off, MagicCLZF)
	bb.PutU32At(off+4, uint32(len(chunks)))
	off += chunkTableHeadSize
	for _, c := range chunks {
		bb.PutU32At(off, c.FileOffset)
		bb.PutU32At(off+4, c.CompressedSize)
		bb.PutU32At(off+8, c.DecompressedSize)
		off += chunkDescriptorSize
	}
}
