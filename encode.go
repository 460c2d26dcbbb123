package csav

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/andreyvit/csav/nodetree"
	"github.com/andreyvit/csav/packed"
)

// Encode serializes f into a complete save file. f.Version must pass
// Validate.
func Encode(f *File, o Options) ([]byte, error) {
	o.fill()
	if err := f.Version.Validate(); err != nil {
		return nil, err
	}
	report := o.Progress.Sub(0, 1)
	report(0, "flattening")

	root := f.Tree.Root()
	size := root.TreeSize()

	var bb packed.Builder
	appendHeader(&bb, f.Version)
	tableOff := bb.Len()
	reserved := reservedTableSize(size)
	base := uint64(tableOff + reserved)
	if base > math.MaxUint32 {
		return nil, fmt.Errorf("csav: header too large")
	}

	descs, buf, err := nodetree.Flatten(root, uint32(base))
	if err != nil {
		return nil, fmt.Errorf("csav: %w", err)
	}
	report(0.1, "compressing")

	chunks, chunkData, err := CompressChunks(buf, uint32(base))
	if err != nil {
		return nil, fmt.Errorf("csav: %w", err)
	}
	if chunkTableHeadSize+chunkDescriptorSize*len(chunks) > reserved {
		panic(fmt.Errorf("csav: %d chunks overflow the reserved chunk table of %d bytes", len(chunks), reserved))
	}
	report(0.9, "writing tables")

	bb.EnsureExtra(reserved + len(chunkData) + len(descs)*32 + 64)
	bb.Grow(reserved)
	putChunkTable(&bb, tableOff, chunks)
	bb.AppendRaw(chunkData)

	nodeTableOff := bb.Len()
	appendNodeTable(&bb, descs)
	if uint64(bb.Len())+trailerSize > math.MaxUint32 {
		return nil, fmt.Errorf("csav: encoded file of %d bytes exceeds 32-bit offsets", bb.Len())
	}
	bb.AppendU32(uint32(nodeTableOff))
	bb.AppendU32(MagicDONE)

	if o.Verbose {
		o.Logger.LogAttrs(o.Context, slog.LevelDebug, "csav: encoded",
			slog.String("version", f.Version.String()),
			slog.Int("nodes", len(descs)),
			slog.Int("chunks", len(chunks)),
			slog.Int("data", size),
			slog.Int("file", bb.Len()))
	}
	report(1, "encoded")
	return bb.Buf, nil
}
