package csav

import (
	"fmt"
	"log/slog"

	"github.com/andreyvit/csav/nodetree"
	"github.com/andreyvit/csav/packed"
)

// File is a decoded save: its header and its node tree.
type File struct {
	Version Version
	Tree    *nodetree.Tree
}

// NewFile wraps root into a File with the given header.
func NewFile(v Version, root *nodetree.Node) *File {
	return &File{Version: v, Tree: nodetree.NewTree(root)}
}

// Decode parses a complete save file. The returned tree does not reference
// data, so data may be unmapped afterwards.
func Decode(data []byte, o Options) (*File, error) {
	o.fill()
	report := o.Progress.Sub(0, 1)
	report(0, "reading header")

	d := packed.NewDecoder(data)
	ver, err := readHeader(d)
	if err != nil {
		return nil, wrapSection("header", err)
	}
	if err := ver.Validate(); err != nil {
		return nil, err
	}
	headerEnd := d.Off()

	descs, err := readNodeTable(data)
	if err != nil {
		return nil, err
	}

	if err := d.Seek(headerEnd); err != nil {
		return nil, wrapSection("chunk table", err)
	}
	chunks, err := readChunkTable(d)
	if err != nil {
		return nil, wrapSection("chunk table", err)
	}
	if o.Verbose {
		o.Logger.LogAttrs(o.Context, slog.LevelDebug, "csav: decoding", slog.String("version", ver.String()), slog.Int("chunks", len(chunks)), slog.Int("nodes", len(descs)))
	}

	r := &chunkReader{
		ctx:     o.Context,
		file:    data,
		logger:  o.Logger,
		verbose: o.Verbose,
		report:  o.Progress.Sub(0.05, 0.85),
	}
	buf, base, err := r.decompress(chunks)
	if err != nil {
		return nil, err
	}

	report(0.85, "building node tree")
	if err := nodetree.VerifyIndexPrefixes(descs, buf, base); err != nil {
		return nil, wrapSection("node table", err)
	}
	root, err := nodetree.Unflatten(descs, buf, base)
	if err != nil {
		return nil, wrapSection("node tree", err)
	}
	report(1, "decoded")
	return NewFile(ver, root), nil
}

func readNodeTable(data []byte) ([]nodetree.SerialDescriptor, error) {
	if len(data) < trailerSize {
		return nil, formatErrf("trailer", int64(len(data)), nil, "file of %d bytes is too short", len(data))
	}
	d := packed.NewDecoder(data)
	_ = d.Seek(len(data) - trailerSize)
	tableOff, _ := d.U32()
	if tag, _ := d.U32(); tag != MagicDONE {
		return nil, formatErrf("trailer", int64(len(data)-4), nil, "bad magic %s", magicString(tag))
	}
	if uint64(tableOff) > uint64(len(data)-trailerSize) {
		return nil, formatErrf("trailer", int64(len(data)-trailerSize), nil, "node table offset 0x%x past end of data", tableOff)
	}
	// keep the node table from reading into the trailer
	d = packed.NewDecoder(data[:len(data)-trailerSize])
	_ = d.Seek(int(tableOff))

	if tag, err := d.U32(); err != nil {
		return nil, wrapSection("node table", err)
	} else if tag != MagicNODE {
		return nil, formatErrf("node table", int64(tableOff), nil, "bad magic %s", magicString(tag))
	}
	count, err := d.PackedInt()
	if err != nil {
		return nil, wrapSection("node table", err)
	}
	// every descriptor takes at least 17 bytes
	if count < 0 || count > int64(d.Remaining()/17) {
		return nil, formatErrf("node table", int64(tableOff), nil, "invalid node count %d", count)
	}

	descs := make([]nodetree.SerialDescriptor, count)
	for i := range descs {
		off := d.Off()
		descs[i], err = readNodeDescriptor(d)
		if err != nil {
			return nil, &FormatError{Section: "node table", Off: int64(off), Node: descs[i].Name, Msg: fmt.Sprintf("descriptor %d", i), Err: corruptedIfShort(err)}
		}
	}
	return descs, nil
}

func readNodeDescriptor(d *packed.Decoder) (desc nodetree.SerialDescriptor, err error) {
	if desc.Name, err = d.PrefixedString(); err != nil {
		return
	}
	if desc.NextIdx, err = d.I32(); err != nil {
		return
	}
	if desc.ChildIdx, err = d.I32(); err != nil {
		return
	}
	if desc.DataOffset, err = d.U32(); err != nil {
		return
	}
	desc.DataSize, err = d.U32()
	return
}

func appendNodeTable(bb *packed.Builder, descs []nodetree.SerialDescriptor) {
	bb.AppendU32(MagicNODE)
	bb.AppendPackedInt(int64(len(descs)))
	for _, d := range descs {
		bb.AppendPrefixedString(d.Name)
		bb.AppendI32(d.NextIdx)
		bb.AppendI32(d.ChildIdx)
		bb.AppendU32(d.DataOffset)
		bb.AppendU32(d.DataSize)
	}
}

// wrapSection attaches the section name to lower-level decoding errors.
// Short reads are reported as corruption.
func wrapSection(section string, err error) error {
	if fe, ok := err.(*FormatError); ok {
		return fe
	}
	if de, ok := err.(*packed.DataError); ok {
		return &FormatError{Section: section, Off: int64(de.Off), Msg: de.Msg, Err: corruptedIfShort(de)}
	}
	return &FormatError{Section: section, Off: -1, Err: err}
}

func corruptedIfShort(err error) error {
	if de, ok := err.(*packed.DataError); ok {
		return corrupted{de}
	}
	return err
}

// corrupted makes a DataError match ErrCorrupted while keeping it reachable
// through errors.As.
type corrupted struct {
	err *packed.DataError
}

func (e corrupted) Error() string {
	return e.err.Error()
}

func (e corrupted) Unwrap() []error {
	return []error{ErrCorrupted, e.err}
}
