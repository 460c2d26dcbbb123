package objgraph

import (
	"errors"
	"reflect"
	"testing"
)

func fieldNames(bp *Blueprint) []string {
	var names []string
	for _, f := range bp.Fields() {
		names = append(names, f.Name)
	}
	return names
}

func defs(names ...string) []FieldDef {
	var result []FieldDef
	for _, n := range names {
		result = append(result, FieldDef{n, "Int32"})
	}
	return result
}

func TestBlueprint_extend(t *testing.T) {
	reg := NewRegistry()
	bp := reg.Blueprint("T")

	m := bp.extend(defs("a", "c"))
	if !m[0].added || !m[1].added {
		t.Fatalf("first extend did not add fields: %+v", m)
	}

	// b is inserted after its predecessor on disk
	m = bp.extend(defs("a", "b", "c"))
	if a, e := fieldNames(bp), []string{"a", "b", "c"}; !reflect.DeepEqual(a, e) {
		t.Fatalf("fields = %v, wanted %v", a, e)
	}
	if m[0].added || !m[1].added || m[2].added || m[2].outOfOrder {
		t.Fatalf("matches = %+v", m)
	}

	// subsets in order are fine
	for _, mm := range bp.extend(defs("a", "c")) {
		if mm.added || mm.outOfOrder {
			t.Fatalf("subset extend reported %+v", mm)
		}
	}

	m = bp.extend(defs("c", "a", "b"))
	if m[0].outOfOrder || !m[1].outOfOrder || m[2].outOfOrder {
		t.Fatalf("out-of-order matches = %+v", m)
	}
	if a, e := fieldNames(bp), []string{"a", "b", "c"}; !reflect.DeepEqual(a, e) {
		t.Fatalf("out-of-order data changed the blueprint to %v", a)
	}

	m = bp.extend([]FieldDef{{"a", "Float"}})
	if m[0].retyped != "Int32" {
		t.Fatalf("retyped = %q, wanted Int32", m[0].retyped)
	}
}

func TestRegistry_isolated(t *testing.T) {
	r1, r2 := NewRegistry(), NewRegistry()
	r1.Preload("T", defs("x"))
	r1.RegisterEnum("E")
	if _, ok := r2.Lookup("T"); ok {
		t.Fatalf("blueprint leaked between registries")
	}
	if r2.IsEnum("E") {
		t.Fatalf("enum leaked between registries")
	}
	if p := must(r2.NewProperty("E")); p.Kind() != KindObject {
		t.Fatalf("unregistered enum name built %v", p.Kind())
	}
	if p := must(r1.NewProperty("E")); p.Kind() != KindEnum {
		t.Fatalf("registered enum name built %v", p.Kind())
	}
}

func TestRegistry_Blueprints(t *testing.T) {
	reg := NewRegistry()
	reg.Blueprint("b")
	reg.Blueprint("a")
	reg.Preload("c", defs("x", "y"))
	var names []string
	for _, bp := range reg.Blueprints() {
		names = append(names, bp.Name())
	}
	if e := []string{"a", "b", "c"}; !reflect.DeepEqual(names, e) {
		t.Fatalf("Blueprints = %v, wanted %v", names, e)
	}
	bp, _ := reg.Lookup("c")
	if bp.Len() != 2 || bp.Index("y") != 1 || bp.Index("z") != -1 {
		t.Fatalf("preloaded blueprint = %v", fieldNames(bp))
	}
}

func TestRegistry_NewProperty(t *testing.T) {
	reg := NewRegistry()

	arr := prop[*FixedArray](reg, "[3]Float")
	if len(arr.Elems) != 3 || arr.Elems[2].Kind() != KindFloat {
		t.Fatalf("[3]Float built %+v", arr)
	}
	dyn := prop[*DynArray](reg, "array:handle:Item")
	if len(dyn.Elems) != 0 || dyn.ElemType() != "handle:Item" {
		t.Fatalf("array:handle:Item built %+v", dyn)
	}
	if h := dyn.Append().(*Handle); !h.IsNull() || h.TargetType() != "Item" || h.Weak() {
		t.Fatalf("appended handle = %+v", h)
	}
	if h := prop[*Handle](reg, "whandle:Item"); !h.Weak() {
		t.Fatalf("whandle is not weak")
	}
	obj := prop[*Object](reg, "Item")
	if obj.Len() != 0 || obj.Blueprint() != reg.Blueprint("Item") {
		t.Fatalf("Item built %v", obj)
	}

	if _, err := reg.NewProperty("array:rRef:Mesh"); !errors.Is(err, ErrUnknownFieldType) {
		t.Fatalf("err = %v, wanted ErrUnknownFieldType", err)
	}
}

func TestObject_SetAppendsToBlueprint(t *testing.T) {
	reg := NewRegistry()
	reg.Preload("T", defs("a", "b"))
	o := reg.NewObject("T")
	o.Set("z", intProp(reg, "Int32", 1))
	o.Set("b", intProp(reg, "Int32", 2))
	o.Set("a", intProp(reg, "Int32", 3))

	var names []string
	for _, f := range o.Fields() {
		names = append(names, f.Name)
	}
	if e := []string{"a", "b", "z"}; !reflect.DeepEqual(names, e) {
		t.Fatalf("Fields = %v, wanted %v", names, e)
	}

	o.Set("a", intProp(reg, "Int32", 4))
	if v := o.Field("a").(*Int).Int64(); v != 4 || o.Len() != 3 {
		t.Fatalf("replaced a = %d, len %d", v, o.Len())
	}
	o.Delete("b")
	if o.Field("b") != nil || o.Len() != 2 {
		t.Fatalf("Delete did not remove b")
	}
}
