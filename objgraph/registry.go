package objgraph

import (
	"slices"
	"strings"
	"sync"
)

// FieldDef is one field of a blueprint.
type FieldDef struct {
	Name     string
	TypeName string
}

// Blueprint is the field layout of one object type: every field seen on any
// instance so far, in order. Blueprints only grow.
type Blueprint struct {
	name string

	mut    sync.RWMutex
	fields []FieldDef
	index  map[string]int
}

func newBlueprint(name string) *Blueprint {
	return &Blueprint{name: name, index: make(map[string]int)}
}

func (bp *Blueprint) Name() string {
	return bp.name
}

func (bp *Blueprint) Fields() []FieldDef {
	bp.mut.RLock()
	defer bp.mut.RUnlock()
	return slices.Clone(bp.fields)
}

func (bp *Blueprint) Len() int {
	bp.mut.RLock()
	defer bp.mut.RUnlock()
	return len(bp.fields)
}

// Index returns the position of the named field, or -1.
func (bp *Blueprint) Index(name string) int {
	bp.mut.RLock()
	defer bp.mut.RUnlock()
	if i, ok := bp.index[name]; ok {
		return i
	}
	return -1
}

func (bp *Blueprint) Field(name string) (FieldDef, bool) {
	bp.mut.RLock()
	defer bp.mut.RUnlock()
	if i, ok := bp.index[name]; ok {
		return bp.fields[i], true
	}
	return FieldDef{}, false
}

// fieldMatch describes how one on-disk field was located in a blueprint.
type fieldMatch struct {
	pos        int
	added      bool
	outOfOrder bool
	retyped    string // previous type name if the disk disagrees
}

// extend locates each of defs in the blueprint, adding the missing ones.
// A field is first searched forward from the previous match and then in the
// whole blueprint; a field found before the previous match is out of order.
// New fields are inserted right after the previous match so that the
// blueprint follows the order of the data.
func (bp *Blueprint) extend(defs []FieldDef) []fieldMatch {
	bp.mut.Lock()
	defer bp.mut.Unlock()

	matches := make([]fieldMatch, len(defs))
	prev := -1
	for i, def := range defs {
		m := &matches[i]
		pos := bp.searchForward(def.Name, prev+1)
		if pos < 0 {
			pos = bp.searchForward(def.Name, 0)
			if pos >= 0 {
				m.outOfOrder = true
			}
		}
		if pos < 0 {
			pos = prev + 1
			bp.insert(pos, def)
			m.added = true
		} else if t := bp.fields[pos].TypeName; t != def.TypeName {
			m.retyped = t
		}
		m.pos = pos
		prev = pos
	}
	return matches
}

// reset replaces the field list, rebuilding the index.
func (bp *Blueprint) reset(fields []FieldDef) {
	bp.mut.Lock()
	defer bp.mut.Unlock()
	bp.fields = fields
	clear(bp.index)
	for i, f := range fields {
		bp.index[f.Name] = i
	}
}

// ensure appends def unless a field of that name exists.
func (bp *Blueprint) ensure(def FieldDef) {
	bp.mut.Lock()
	defer bp.mut.Unlock()
	if _, ok := bp.index[def.Name]; !ok {
		bp.insert(len(bp.fields), def)
	}
}

func (bp *Blueprint) searchForward(name string, from int) int {
	for i := from; i < len(bp.fields); i++ {
		if bp.fields[i].Name == name {
			return i
		}
	}
	return -1
}

func (bp *Blueprint) insert(pos int, def FieldDef) {
	bp.fields = slices.Insert(bp.fields, pos, def)
	for i := pos; i < len(bp.fields); i++ {
		bp.index[bp.fields[i].Name] = i
	}
}

// Registry holds the blueprints and enum names of one application session.
// It is safe for concurrent use; nothing is global, so independent registries
// never see each other's blueprints.
type Registry struct {
	mut        sync.Mutex
	blueprints map[string]*Blueprint
	enums      map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		blueprints: make(map[string]*Blueprint),
		enums:      make(map[string]bool),
	}
}

// Blueprint returns the blueprint of the given object type, creating an
// empty one on first use.
func (r *Registry) Blueprint(typeName string) *Blueprint {
	bp, _ := r.blueprint(typeName)
	return bp
}

func (r *Registry) blueprint(typeName string) (bp *Blueprint, created bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	bp = r.blueprints[typeName]
	if bp == nil {
		bp = newBlueprint(typeName)
		r.blueprints[typeName] = bp
		created = true
	}
	return bp, created
}

func (r *Registry) forget(bp *Blueprint) {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.blueprints[bp.name] == bp {
		delete(r.blueprints, bp.name)
	}
}

func (r *Registry) Lookup(typeName string) (*Blueprint, bool) {
	r.mut.Lock()
	defer r.mut.Unlock()
	bp, ok := r.blueprints[typeName]
	return bp, ok
}

// Preload seeds the blueprint of typeName with fields, e.g. from a
// blueprint store. Fields already known are kept where they are.
func (r *Registry) Preload(typeName string, fields []FieldDef) *Blueprint {
	bp := r.Blueprint(typeName)
	bp.extend(fields)
	return bp
}

// Blueprints returns all blueprints sorted by type name.
func (r *Registry) Blueprints() []*Blueprint {
	r.mut.Lock()
	defer r.mut.Unlock()
	result := make([]*Blueprint, 0, len(r.blueprints))
	for _, bp := range r.blueprints {
		result = append(result, bp)
	}
	slices.SortFunc(result, func(a, b *Blueprint) int {
		return strings.Compare(a.name, b.name)
	})
	return result
}

// RegisterEnum marks type names as enums. Enum values are stored as string
// pool ids; unregistered names are decoded as nested objects.
func (r *Registry) RegisterEnum(names ...string) {
	r.mut.Lock()
	defer r.mut.Unlock()
	for _, name := range names {
		r.enums[name] = true
	}
}

func (r *Registry) IsEnum(name string) bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.enums[name]
}

// NewProperty builds a zero-valued property of the given type name. Unknown
// type names fail with ErrUnknownFieldType.
func (r *Registry) NewProperty(typeName string) (Property, error) {
	p, err := r.newProperty(typeName)
	if err != nil {
		return nil, err
	}
	if arr, ok := p.(*FixedArray); ok {
		if err := arr.fill(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// newProperty is NewProperty without fixed array elements; decoding creates
// them as it reads.
func (r *Registry) newProperty(typeName string) (Property, error) {
	ts, err := parseType(typeName, r.IsEnum)
	if err != nil {
		return nil, err
	}
	return r.build(ts)
}

func (r *Registry) build(ts typeSpec) (Property, error) {
	switch ts.kind {
	case KindBool:
		return &Bool{}, nil
	case KindInt:
		return newInt(ts), nil
	case KindFloat:
		return newFloat(ts), nil
	case KindString:
		return &String{}, nil
	case KindCName:
		return &CName{}, nil
	case KindTweakDBID:
		return &TweakDBID{}, nil
	case KindEnum:
		return &Enum{typ: ts.name}, nil
	case KindFixedArray:
		return &FixedArray{typ: ts.name, inner: ts.inner, count: ts.count, reg: r}, nil
	case KindDynArray:
		return &DynArray{typ: ts.name, inner: ts.inner, reg: r}, nil
	case KindHandle:
		return &Handle{typ: ts.name, target: ts.inner, weak: ts.weak, Index: -1}, nil
	case KindObject:
		return r.NewObject(ts.name), nil
	default:
		panic("unreachable")
	}
}

// NewObject returns an object of the given type with no fields set.
func (r *Registry) NewObject(typeName string) *Object {
	return &Object{typ: typeName, bp: r.Blueprint(typeName)}
}
