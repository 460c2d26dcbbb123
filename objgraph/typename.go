package objgraph

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindOpaque Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindCName
	KindTweakDBID
	KindEnum
	KindFixedArray
	KindDynArray
	KindHandle
	KindObject
)

var kindNames = [...]string{
	KindOpaque:     "opaque",
	KindBool:       "bool",
	KindInt:        "int",
	KindFloat:      "float",
	KindString:     "string",
	KindCName:      "cname",
	KindTweakDBID:  "tweakdbid",
	KindEnum:       "enum",
	KindFixedArray: "fixed-array",
	KindDynArray:   "array",
	KindHandle:     "handle",
	KindObject:     "object",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// typeSpec is a parsed type name.
type typeSpec struct {
	name   string
	kind   Kind
	size   int  // fixed payload size of scalars
	signed bool // KindInt
	weak   bool // KindHandle
	count  int  // KindFixedArray
	inner  string
}

const (
	prefixArray   = "array:"
	prefixHandle  = "handle:"
	prefixWHandle = "whandle:"

	MaxFixedArrayLen = 1 << 20
)

var scalarTypes = map[string]typeSpec{
	"Bool":      {kind: KindBool, size: 1},
	"Int8":      {kind: KindInt, size: 1, signed: true},
	"Int16":     {kind: KindInt, size: 2, signed: true},
	"Int32":     {kind: KindInt, size: 4, signed: true},
	"Int64":     {kind: KindInt, size: 8, signed: true},
	"Uint8":     {kind: KindInt, size: 1},
	"Uint16":    {kind: KindInt, size: 2},
	"Uint32":    {kind: KindInt, size: 4},
	"Uint64":    {kind: KindInt, size: 8},
	"Float":     {kind: KindFloat, size: 4},
	"Double":    {kind: KindFloat, size: 8},
	"String":    {kind: KindString},
	"CName":     {kind: KindCName, size: 2},
	"TweakDBID": {kind: KindTweakDBID, size: 8},
}

// parseType decomposes a type name. isEnum tells registered enum names apart
// from object type names.
func parseType(name string, isEnum func(string) bool) (typeSpec, error) {
	if ts, ok := scalarTypes[name]; ok {
		ts.name = name
		return ts, nil
	}
	if inner, ok := strings.CutPrefix(name, prefixArray); ok {
		return compound(name, KindDynArray, inner, isEnum)
	}
	if inner, ok := strings.CutPrefix(name, prefixHandle); ok {
		return handleSpec(name, inner, false)
	}
	if inner, ok := strings.CutPrefix(name, prefixWHandle); ok {
		return handleSpec(name, inner, true)
	}
	if rest, ok := strings.CutPrefix(name, "["); ok {
		countStr, inner, ok := strings.Cut(rest, "]")
		if !ok {
			return typeSpec{}, unknownType(name)
		}
		n, err := strconv.Atoi(countStr)
		if err != nil || n <= 0 || n > MaxFixedArrayLen || countStr[0] == '+' {
			return typeSpec{}, unknownType(name)
		}
		ts, err := compound(name, KindFixedArray, inner, isEnum)
		ts.count = n
		return ts, err
	}
	if !isIdentifier(name) {
		return typeSpec{}, unknownType(name)
	}
	if isEnum != nil && isEnum(name) {
		return typeSpec{name: name, kind: KindEnum, size: 2}, nil
	}
	return typeSpec{name: name, kind: KindObject}, nil
}

func compound(name string, kind Kind, inner string, isEnum func(string) bool) (typeSpec, error) {
	if _, err := parseType(inner, isEnum); err != nil {
		return typeSpec{}, fmt.Errorf("%w (element of %s)", err, name)
	}
	return typeSpec{name: name, kind: kind, inner: inner}, nil
}

func handleSpec(name, target string, weak bool) (typeSpec, error) {
	if !isIdentifier(target) {
		return typeSpec{}, unknownType(name)
	}
	return typeSpec{name: name, kind: KindHandle, size: 4, weak: weak, inner: target}, nil
}

func unknownType(name string) error {
	return fmt.Errorf("%w %q", ErrUnknownFieldType, name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9', c == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
