/*
Package csav reads and writes chunked save files: a small header, a table of
independently LZ4-compressed chunks, and a table of node descriptors that
turns the decompressed buffer back into a tree of named nodes.

# File layout

All integers are little-endian.

	u32 magic ('CSAV' or 'SAVE')
	u32 major, u32 game, prefixed misc string, u32 unk0, u32 unk1
	u32 minor                                   (only if major >= 83)
	-- header end --
	u32 'CLZF', u32 chunk count
	chunk count × {u32 file offset, u32 compressed size, u32 decompressed size}
	(zero padding up to the reserved size)
	chunk count × {u32 'XLZ4', u32 decompressed size, LZ4 block}
	u32 'NODE', packed node count
	node count × {prefixed name, i32 next, i32 child, u32 offset, u32 size}
	u32 node table offset, u32 'DONE'

**Buffer anchoring.**
The decompressed chunks are concatenated into one buffer whose first byte
is considered to live at the smallest chunk file offset. Node descriptor
offsets are expressed in that space, so the writer flattens the node tree at
the offset the first chunk will be written to.

**Reserved chunk table.**
The writer does not know the chunk count before compressing, so it reserves
room for CompressBlockBound(size)/ChunkSize + 2 entries and backpatches the
table once the chunks are written.

**Legacy chunks.**
Some platforms store the first chunk uncompressed without the 'XLZ4' tag.
Only the first chunk may do that; a missing tag anywhere else is corruption.

**Backups.**
Save copies the file it is about to replace to X.old, unless X.old already
exists. The oldest backup wins.
*/
package csav
