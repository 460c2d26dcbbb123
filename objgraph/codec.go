package objgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/csav/packed"
	"github.com/andreyvit/csav/strpool"
)

type Options struct {
	Context context.Context
	Logger  *slog.Logger
	Verbose bool

	// Verify re-encodes every decoded package and fails with
	// ErrRoundTripMismatch if the bytes differ.
	Verify bool
}

func (o *Options) fill() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type decoder struct {
	ctx     context.Context
	logger  *slog.Logger
	verbose bool
	reg     *Registry
	pool    *strpool.Pool
	handles []*Handle

	// blueprint states before this decode touched them
	saved   []savedBlueprint
	touched map[*Blueprint]bool
}

type savedBlueprint struct {
	bp      *Blueprint
	created bool
	fields  []FieldDef
}

func newDecoder(reg *Registry, pool *strpool.Pool, o Options) *decoder {
	return &decoder{
		ctx:     o.Context,
		logger:  o.Logger,
		verbose: o.Verbose,
		reg:     reg,
		pool:    pool,
	}
}

func (c *decoder) property(p Property, d *packed.Decoder) error {
	return p.decode(c, d)
}

// newObject creates an object through the registry, remembering the state of
// its blueprint so that a failed decode can undo what it learned.
func (c *decoder) newObject(typeName string) *Object {
	bp, created := c.reg.blueprint(typeName)
	if !c.touched[bp] {
		if c.touched == nil {
			c.touched = make(map[*Blueprint]bool)
		}
		c.touched[bp] = true
		c.saved = append(c.saved, savedBlueprint{bp, created, bp.Fields()})
	}
	return &Object{typ: typeName, bp: bp}
}

func (c *decoder) newProperty(typeName string) (Property, error) {
	ts, err := parseType(typeName, c.reg.IsEnum)
	if err != nil {
		return nil, err
	}
	if ts.kind == KindObject {
		return c.newObject(ts.name), nil
	}
	return c.reg.build(ts)
}

// rollback restores every blueprint touched by this decode.
func (c *decoder) rollback() {
	for i := len(c.saved) - 1; i >= 0; i-- {
		s := c.saved[i]
		if s.created {
			c.reg.forget(s.bp)
		} else {
			s.bp.reset(s.fields)
		}
	}
	c.saved, c.touched = nil, nil
}

func (c *decoder) poolString(d *packed.Decoder) (string, error) {
	id, err := d.U16()
	if err != nil {
		return "", err
	}
	s, err := c.pool.At(int(id))
	if err != nil {
		return "", packed.DataErrf(d.Orig, d.Off()-2, ErrCorrupted, "%v", err)
	}
	return s, nil
}

func (c *decoder) extend(o *Object, defs []FieldDef) {
	matches := o.bp.extend(defs)
	for i, m := range matches {
		switch {
		case m.outOfOrder:
			c.logger.LogAttrs(c.ctx, slog.LevelWarn, "objgraph: out-of-order field", slog.String("type", o.typ), slog.String("field", defs[i].Name), slog.Int("pos", m.pos))
		case m.retyped != "":
			c.logger.LogAttrs(c.ctx, slog.LevelWarn, "objgraph: field type differs from blueprint", slog.String("type", o.typ), slog.String("field", defs[i].Name), slog.String("blueprint", m.retyped), slog.String("disk", defs[i].TypeName))
		case m.added && c.verbose:
			c.logger.LogAttrs(c.ctx, slog.LevelDebug, "objgraph: new field", slog.String("type", o.typ), slog.String("field", defs[i].Name), slog.String("field_type", defs[i].TypeName))
		}
	}
}

func (c *decoder) fallback(o *Object, f diskField, err error) {
	c.logger.LogAttrs(c.ctx, slog.LevelWarn, "objgraph: keeping undecodable last field raw",
		slog.String("type", o.typ),
		slog.String("field", f.name),
		slog.String("field_type", f.typ),
		slog.Int("off", f.off),
		slog.Any("err", err))
}

type encoder struct {
	pool    *strpool.Pool
	handles *HandleTable
}

func (c *encoder) id16(s string) (uint16, error) {
	id := c.pool.Insert(s)
	if id > 0xFFFF {
		return 0, fmt.Errorf("string pool id %d of %q does not fit 16 bits", id, s)
	}
	return uint16(id), nil
}

func (c *encoder) poolID16(bb *packed.Builder, s string) error {
	id, err := c.id16(s)
	if err != nil {
		return err
	}
	bb.AppendU16(id)
	return nil
}

// DecodeObject decodes standalone object data whose strings live in pool.
// Handles are left unresolved: their Index holds the on-disk value. On
// failure the blueprints in reg are left as they were.
func DecodeObject(data []byte, typeName string, pool *strpool.Pool, reg *Registry, o Options) (*Object, error) {
	o.fill()
	c := newDecoder(reg, pool, o)
	obj := c.newObject(typeName)
	if err := c.object(obj, packed.NewDecoder(data)); err != nil {
		c.rollback()
		return nil, asCorrupted(err)
	}
	return obj, nil
}

// EncodeObject is the inverse of DecodeObject. New strings are added to pool.
func EncodeObject(obj *Object, pool *strpool.Pool) ([]byte, error) {
	var bb packed.Builder
	c := &encoder{pool: pool}
	if err := c.object(&bb, obj); err != nil {
		return nil, err
	}
	return bb.Buf, nil
}
