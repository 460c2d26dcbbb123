/*
Package objgraph decodes and encodes the object packages stored inside some
nodes of a save file: self-describing objects whose fields carry their own
type names, resolved at runtime through a Registry.

# Package layout

All integers are little-endian.

	u16 version (4), u16 flags, u32 root count
	u32 string pool descriptor size, u32 string pool data size
	u32 object count
	string pool descriptors, string pool data
	object count × {u32 type name id, u32 data offset}
	object data

Object data offsets are relative to the start of the object data region; each
object extends to the next one's offset.

# Object layout

	u16 field count
	field count × {u16 name id, u16 type name id, u32 offset}
	field payloads

Field offsets are relative to the object start; a field extends to the next
field's offset, the last one to the end of the object.

# Field types

Type names are dispatched by pattern:

	Bool                  u8, 0 or 1
	Int8 .. Int64         little-endian two's complement
	Uint8 .. Uint64       little-endian
	Float, Double         IEEE 754, 4 and 8 bytes
	String                prefixed string
	CName                 u16 string pool id
	TweakDBID             u64
	[N]T                  N elements of T back to back
	array:T               u32 count, then elements
	handle:T, whandle:T   i32 index into the package's objects, -1 for null
	registered enum       u16 string pool id of the enumerator
	any other identifier  nested object: u32 size, then object data

A type name that matches nothing is an error, except in the last field of an
object: there the raw bytes are kept as an Opaque property and written back
unchanged.

# Blueprints

Every object type has a Blueprint listing the fields seen so far, in order.
Objects are always re-encoded in blueprint order, skipping fields they don't
have. Fields that arrive out of blueprint order are accepted and logged.
*/
package objgraph
