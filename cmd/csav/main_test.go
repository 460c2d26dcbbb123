package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/andreyvit/csav"
	"github.com/andreyvit/csav/bpstore"
	"github.com/andreyvit/csav/nodetree"
	"github.com/andreyvit/csav/objgraph"
)

type fixture struct {
	dir    string
	save   string
	config string
	bpdb   string
	root   *nodetree.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{dir: t.TempDir()}
	fx.save = filepath.Join(fx.dir, "sav.dat")
	fx.config = filepath.Join(fx.dir, "csav.yaml")
	fx.bpdb = filepath.Join(fx.dir, "bp.db")

	reg := objgraph.NewRegistry()
	player := reg.NewObject("Player")
	health := must(reg.NewProperty("Int32")).(*objgraph.Int)
	ensure(health.SetInt64(100))
	player.Set("health", health)
	player.Set("name", &objgraph.String{V: "V"})
	pkg := objgraph.NewPackage()
	pkg.Objects = []*objgraph.Object{player}
	pkg.RootCount = 1

	fx.root = nodetree.NewRoot(
		nodetree.NewIndexed(0, "SaveHeader", []byte("header")),
		nodetree.NewIndexed(0, "PlayerData", must(pkg.Encode())),
		nodetree.NewIndexed(0, "Broken", []byte{4, 0, 0, 0}),
	)
	f := csav.NewFile(csav.Version{Magic: csav.MagicCSAV, Major: 193, Game: 9, Minor: 7}, fx.root)
	ensure(os.WriteFile(fx.save, must(csav.Encode(f, csav.Options{})), 0o644))

	fx.writeConfig(t, "package_nodes: [PlayerData]\nblueprint_db: "+fx.bpdb+"\n")
	return fx
}

func (fx *fixture) writeConfig(t *testing.T, content string) {
	t.Helper()
	ensure(os.WriteFile(fx.config, []byte(content), 0o644))
}

func (fx *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	err := run(context.Background(), append([]string{"--config", fx.config}, args...), &out, &logs)
	if logs.Len() > 0 {
		t.Logf("logs:\n%s", logs.String())
	}
	return out.String(), err
}

func (fx *fixture) ok(t *testing.T, args ...string) string {
	t.Helper()
	out, err := fx.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\noutput:\n%s", args, err, out)
	}
	return out
}

func TestInfoCmd(t *testing.T) {
	fx := newFixture(t)
	out := fx.ok(t, "info", fx.save)
	for _, s := range []string{"version: CSAV v193.7 game 9", "nodes: 3", "blobs: 0"} {
		if !strings.Contains(out, s) {
			t.Errorf("info output lacks %q:\n%s", s, out)
		}
	}
}

func TestTreeCmd(t *testing.T) {
	fx := newFixture(t)
	out := fx.ok(t, "tree", "--sizes", fx.save)
	if !strings.Contains(out, "  PlayerData[1] (data ") {
		t.Errorf("tree output:\n%s", out)
	}
	out = fx.ok(t, "tree", "--node", "Broken", fx.save)
	if strings.TrimSpace(out) != "Broken[2]" {
		t.Errorf("subtree output:\n%s", out)
	}
	if _, err := fx.run(t, "tree", "--node", "Missing", fx.save); err == nil {
		t.Errorf("tree of a missing node succeeded")
	}
}

func TestDumpCmd(t *testing.T) {
	fx := newFixture(t)
	out := fx.ok(t, "dump", fx.save, "PlayerData")
	expected := "#0 Player\n  health: 100\n  name: \"V\"\n"
	if out != expected {
		t.Errorf("dump output:\n%s\nwanted:\n%s", out, expected)
	}

	store := must(bpstore.Open(fx.bpdb, bpstore.Options{}))
	defer store.Close()
	if types := must(store.Types()); !slices.Contains(types, "Player") {
		t.Errorf("stored blueprints = %v", types)
	}
}

func TestVerifyCmd(t *testing.T) {
	fx := newFixture(t)
	out := fx.ok(t, "verify", fx.save)
	if !strings.Contains(out, "ok: node tree") || !strings.Contains(out, "ok: PlayerData #1") {
		t.Errorf("verify output:\n%s", out)
	}

	out, err := fx.run(t, "verify", "--node", "Broken", fx.save)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 packages") {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(out, "FAIL: Broken #2") {
		t.Errorf("verify output:\n%s", out)
	}
}

func TestVerifyCmd_nodeListedTwice(t *testing.T) {
	fx := newFixture(t)
	out := fx.ok(t, "verify", "--node", "PlayerData", fx.save)
	if n := strings.Count(out, "ok: PlayerData #1"); n != 1 {
		t.Errorf("PlayerData verified %d times:\n%s", n, out)
	}
}

func TestFailedCmdDoesNotSaveBlueprints(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.run(t, "verify", "--node", "Broken", fx.save); err == nil {
		t.Fatalf("verify of a broken package succeeded")
	}

	store := must(bpstore.Open(fx.bpdb, bpstore.Options{}))
	defer store.Close()
	if types := must(store.Types()); len(types) != 0 {
		t.Errorf("stored blueprints after a failed command = %v", types)
	}
}

func TestResaveCmd(t *testing.T) {
	fx := newFixture(t)
	orig := must(os.ReadFile(fx.save))

	out := filepath.Join(fx.dir, "copy.dat")
	fx.ok(t, "resave", fx.save, out)
	if !bytes.Equal(must(os.ReadFile(out)), orig) {
		t.Errorf("resaved copy differs from the original")
	}

	fx.ok(t, "resave", fx.save)
	if !bytes.Equal(must(os.ReadFile(csav.BackupPath(fx.save))), orig) {
		t.Errorf("backup differs from the original")
	}

	fx.writeConfig(t, "backup: false\n")
	fx.ok(t, "resave", out)
	if _, err := os.Stat(csav.BackupPath(out)); !os.IsNotExist(err) {
		t.Errorf("backup made with backup: false (err %v)", err)
	}
}

func TestExportCmd(t *testing.T) {
	fx := newFixture(t)
	for _, zstd := range []bool{false, true} {
		out := filepath.Join(fx.dir, "snap.cbor")
		args := []string{"export", fx.save, out}
		if zstd {
			args = append(args, "--zstd")
		}
		if msg := fx.ok(t, args...); !strings.Contains(msg, "exported 3 nodes") {
			t.Errorf("export output: %s", msg)
		}
		r := must(os.Open(out))
		root, err := nodetree.ReadSnapshot(r)
		r.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !nodetree.Equal(root, fx.root) {
			t.Errorf("zstd=%v: snapshot differs from the saved tree", zstd)
		}
	}
}

func TestBadConfig(t *testing.T) {
	fx := newFixture(t)
	fx.writeConfig(t, "log_level: loud\n")
	if _, err := fx.run(t, "info", fx.save); err == nil || !strings.Contains(err.Error(), "config") {
		t.Fatalf("err = %v, wanted config error", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
