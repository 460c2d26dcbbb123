// Package bpstore persists object blueprints between sessions, so that field
// order learned from one save file is known before the next one is opened.
package bpstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/csav/objgraph"
)

var bucketName = []byte("blueprints")

var ErrChecksum = errors.New("blueprint record checksum mismatch")

type Options struct {
	Context context.Context
	Logger  *slog.Logger

	// IsTesting trades durability for speed.
	IsTesting bool
}

func (o *Options) fill() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Store struct {
	bdb    *bbolt.DB
	ctx    context.Context
	logger *slog.Logger
}

type record struct {
	Type   string  `msgpack:"t"`
	Fields []field `msgpack:"f"`
	Sum    uint64  `msgpack:"s"`
}

type field struct {
	Name string `msgpack:"n"`
	Type string `msgpack:"y"`
}

func Open(path string, o Options) (*Store, error) {
	o.fill()
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if o.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	}
	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, fmt.Errorf("bpstore: %w", err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("bpstore: %w", err)
	}
	return &Store{bdb: bdb, ctx: o.Context, logger: o.Logger}, nil
}

func (s *Store) Close() error {
	return s.bdb.Close()
}

func checksum(typ string, fields []field) uint64 {
	h := xxhash.New()
	h.WriteString(typ)
	for _, f := range fields {
		h.Write([]byte{0})
		h.WriteString(f.Name)
		h.Write([]byte{0})
		h.WriteString(f.Type)
	}
	return h.Sum64()
}

func encodeRecord(bp *objgraph.Blueprint) ([]byte, error) {
	r := record{Type: bp.Name()}
	for _, fd := range bp.Fields() {
		r.Fields = append(r.Fields, field{fd.Name, fd.TypeName})
	}
	r.Sum = checksum(r.Type, r.Fields)

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	err := enc.Encode(&r)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(key, raw []byte) (*record, error) {
	r := new(record)
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(raw))
	err := dec.Decode(r)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("blueprint %q: %w", key, err)
	}
	if r.Type != string(key) {
		return nil, fmt.Errorf("blueprint %q: record is for %q: %w", key, r.Type, ErrChecksum)
	}
	if sum := checksum(r.Type, r.Fields); sum != r.Sum {
		return nil, fmt.Errorf("blueprint %q: stored %016x, computed %016x: %w", key, r.Sum, sum, ErrChecksum)
	}
	return r, nil
}

// Save writes every blueprint of reg, replacing stored versions.
func (s *Store) Save(reg *objgraph.Registry) error {
	bps := reg.Blueprints()
	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, bp := range bps {
			raw, err := encodeRecord(bp)
			if err != nil {
				return fmt.Errorf("blueprint %q: %w", bp.Name(), err)
			}
			if err := b.Put([]byte(bp.Name()), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bpstore: %w", err)
	}
	s.logger.LogAttrs(s.ctx, slog.LevelDebug, "bpstore: saved", slog.Int("blueprints", len(bps)))
	return nil
}

// Load preloads every stored blueprint into reg. Records that fail to decode
// or verify are logged and skipped; the number loaded is returned.
func (s *Store) Load(reg *objgraph.Registry) (int, error) {
	var n, skipped int
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, v []byte) error {
			r, err := decodeRecord(k, v)
			if err != nil {
				skipped++
				s.logger.LogAttrs(s.ctx, slog.LevelWarn, "bpstore: skipping blueprint", slog.Any("err", err))
				return nil
			}
			defs := make([]objgraph.FieldDef, len(r.Fields))
			for i, f := range r.Fields {
				defs[i] = objgraph.FieldDef{Name: f.Name, TypeName: f.Type}
			}
			reg.Preload(r.Type, defs)
			n++
			return nil
		})
	})
	if err != nil {
		return n, fmt.Errorf("bpstore: %w", err)
	}
	s.logger.LogAttrs(s.ctx, slog.LevelDebug, "bpstore: loaded", slog.Int("blueprints", n), slog.Int("skipped", skipped))
	return n, nil
}

// Delete removes a stored blueprint. Missing ones are ignored.
func (s *Store) Delete(typeName string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(typeName))
	})
}

// Types lists stored blueprint names in key order.
func (s *Store) Types() ([]string, error) {
	var result []string
	err := s.bdb.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			result = append(result, string(k))
			return nil
		})
	})
	return result, err
}
