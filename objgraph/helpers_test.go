package objgraph

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/andreyvit/csav/csavtest"
)

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

func prop[T Property](reg *Registry, typeName string) T {
	return must(reg.NewProperty(typeName)).(T)
}

func intProp(reg *Registry, typeName string, v int64) *Int {
	p := prop[*Int](reg, typeName)
	ensure(p.SetInt64(v))
	return p
}

func testOptions(t testing.TB) Options {
	return Options{Logger: csavtest.Logger(t), Verbose: true}
}

// logCapture collects log output for assertions.
type logCapture struct {
	mut sync.Mutex
	buf bytes.Buffer
}

func (lc *logCapture) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(lc, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (lc *logCapture) Write(b []byte) (int, error) {
	lc.mut.Lock()
	defer lc.mut.Unlock()
	return lc.buf.Write(b)
}

func (lc *logCapture) Contains(s string) bool {
	lc.mut.Lock()
	defer lc.mut.Unlock()
	return bytes.Contains(lc.buf.Bytes(), []byte(s))
}
