package csav

import (
	"fmt"

	"github.com/andreyvit/csav/packed"
)

// Magic tags, as little-endian u32 values of their ASCII spelling.
const (
	MagicCSAV uint32 = 0x56415343 // 'CSAV'
	MagicSAVE uint32 = 0x45564153 // 'SAVE'
	MagicCLZF uint32 = 0x465A4C43 // 'CLZF'
	MagicXLZ4 uint32 = 0x345A4C58 // 'XLZ4'
	MagicNODE uint32 = 0x45444F4E // 'NODE'
	MagicDONE uint32 = 0x454E4F44 // 'DONE'
)

const (
	// MinorVersionSince is the first major version whose header carries a
	// minor version.
	MinorVersionSince = 83

	MinSupportedMajor = 125
	MaxSupportedMajor = 193
	MaxSupportedGame  = 9

	trailerSize = 8
)

// Version is the save file header. It is kept verbatim so that a re-saved
// file carries the same header.
type Version struct {
	Magic uint32
	Major uint32
	Game  uint32
	Misc  string
	Unk0  uint32
	Unk1  uint32
	Minor uint32 // only stored when Major >= MinorVersionSince
}

func (v Version) String() string {
	return fmt.Sprintf("%s v%d.%d game %d", magicString(v.Magic), v.Major, v.Minor, v.Game)
}

func (v Version) HasMinor() bool {
	return v.Major >= MinorVersionSince
}

// Validate rejects version combinations known to be incompatible.
func (v Version) Validate() error {
	switch {
	case v.Magic != MagicCSAV && v.Magic != MagicSAVE:
		return formatErrf("header", 0, nil, "bad magic %s", magicString(v.Magic))
	case v.Major < MinSupportedMajor:
		return formatErrf("header", -1, ErrUnsupportedVersion, "major version %d is older than %d", v.Major, MinSupportedMajor)
	case v.Major > MaxSupportedMajor:
		return formatErrf("header", -1, ErrUnsupportedVersion, "major version %d is newer than %d", v.Major, MaxSupportedMajor)
	case v.Game > MaxSupportedGame:
		return formatErrf("header", -1, ErrUnsupportedVersion, "game version %d is newer than %d", v.Game, MaxSupportedGame)
	}
	return nil
}

func readHeader(d *packed.Decoder) (Version, error) {
	var v Version
	var err error
	if v.Magic, err = d.U32(); err != nil {
		return v, err
	}
	if v.Magic != MagicCSAV && v.Magic != MagicSAVE {
		return v, formatErrf("header", 0, nil, "bad magic %s", magicString(v.Magic))
	}
	if v.Major, err = d.U32(); err != nil {
		return v, err
	}
	if v.Game, err = d.U32(); err != nil {
		return v, err
	}
	if v.Misc, err = d.PrefixedString(); err != nil {
		return v, err
	}
	if v.Unk0, err = d.U32(); err != nil {
		return v, err
	}
	if v.Unk1, err = d.U32(); err != nil {
		return v, err
	}
	if v.HasMinor() {
		if v.Minor, err = d.U32(); err != nil {
			return v, err
		}
	}
	return v, nil
}

func appendHeader(bb *packed.Builder, v Version) {
	bb.AppendU32(v.Magic)
	bb.AppendU32(v.Major)
	bb.AppendU32(v.Game)
	bb.AppendPrefixedString(v.Misc)
	bb.AppendU32(v.Unk0)
	bb.AppendU32(v.Unk1)
	if v.HasMinor() {
		bb.AppendU32(v.Minor)
	}
}
