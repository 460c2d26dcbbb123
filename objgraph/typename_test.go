package objgraph

import (
	"errors"
	"testing"
)

func TestParseType(t *testing.T) {
	isEnum := func(s string) bool { return s == "gameDifficulty" }
	tests := []struct {
		name  string
		kind  Kind
		inner string
		count int
	}{
		{"Bool", KindBool, "", 0},
		{"Int16", KindInt, "", 0},
		{"Uint64", KindInt, "", 0},
		{"Double", KindFloat, "", 0},
		{"String", KindString, "", 0},
		{"CName", KindCName, "", 0},
		{"TweakDBID", KindTweakDBID, "", 0},
		{"gameDifficulty", KindEnum, "", 0},
		{"gameSavedStatsData", KindObject, "", 0},
		{"array:Bool", KindDynArray, "Bool", 0},
		{"array:array:handle:Item", KindDynArray, "array:handle:Item", 0},
		{"[3]Float", KindFixedArray, "Float", 3},
		{"[2]array:Int8", KindFixedArray, "array:Int8", 2},
		{"handle:Item", KindHandle, "Item", 0},
		{"whandle:Item", KindHandle, "Item", 0},
	}
	for _, tt := range tests {
		ts, err := parseType(tt.name, isEnum)
		if err != nil {
			t.Errorf("parseType(%q) failed: %v", tt.name, err)
			continue
		}
		if ts.kind != tt.kind || ts.inner != tt.inner || ts.count != tt.count || ts.name != tt.name {
			t.Errorf("parseType(%q) = %+v, wanted kind %v inner %q count %d", tt.name, ts, tt.kind, tt.inner, tt.count)
		}
	}
}

func TestParseType_unknown(t *testing.T) {
	for _, name := range []string{
		"",
		"rRef:CMesh",
		"array:",
		"array:rRef:CMesh",
		"handle:",
		"handle:array:Int8",
		"[0]Bool",
		"[1048577]Bool",
		"[-1]Bool",
		"[+1]Bool",
		"[x]Bool",
		"[3Bool",
		"[3]",
		"1Type",
		"Type With Spaces",
	} {
		_, err := parseType(name, nil)
		if !errors.Is(err, ErrUnknownFieldType) {
			t.Errorf("parseType(%q) err = %v, wanted ErrUnknownFieldType", name, err)
		}
	}
}
