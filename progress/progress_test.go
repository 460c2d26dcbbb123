package progress

import (
	"errors"
	"sync"
	"testing"
)

func TestProgress_monotonic(t *testing.T) {
	var p Progress
	p.Set(0.5, "chunks")
	p.Set(0.3, "")
	if v, c := p.Snapshot(); v != 0.5 || c != "chunks" {
		t.Fatalf("Snapshot = %v, %q, wanted 0.5, chunks", v, c)
	}
	p.Set(2, "")
	if v := p.Value(); v != 1 {
		t.Fatalf("Value = %v, wanted clamped 1", v)
	}

	var nilp *Progress
	nilp.Set(0.5, "ignored")
	if v, c := nilp.Snapshot(); v != 0 || c != "" {
		t.Fatalf("nil Snapshot = %v, %q", v, c)
	}
}

func TestProgress_sub(t *testing.T) {
	var p Progress
	report := p.Sub(0.2, 0.6)
	report(0.5, "half")
	if v := p.Value(); v < 0.399 || v > 0.401 {
		t.Fatalf("Value = %v, wanted 0.4", v)
	}
}

func TestRunner_rejectsSecondJob(t *testing.T) {
	var r Runner
	release := make(chan struct{})
	started := make(chan struct{})
	err := r.Start("save", func(p *Progress) error {
		p.Set(0.25, "compressing")
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if err := r.Start("load", func(p *Progress) error { return nil }); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Start err = %v, wanted ErrBusy", err)
	}
	if !r.Running() {
		t.Fatalf("Running = false while job blocked")
	}
	if v, c := r.Progress().Snapshot(); v != 0.25 || c != "compressing" {
		t.Fatalf("Snapshot = %v, %q", v, c)
	}

	close(release)
	if err := r.Wait(); err != nil {
		t.Fatal(err)
	}
	if v := r.Progress().Value(); v != 1 {
		t.Fatalf("final Value = %v, wanted 1", v)
	}
	if err := r.Start("load", func(p *Progress) error { return nil }); err != nil {
		t.Fatalf("Start after completion: %v", err)
	}
	_ = r.Wait()
}

func TestRunner_reportsFailuresAndPanics(t *testing.T) {
	var r Runner
	boom := errors.New("boom")
	ensure(r.Start("fail", func(p *Progress) error { return boom }))
	if err := r.Wait(); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, wanted boom", err)
	}

	ensure(r.Start("panic", func(p *Progress) error { panic("kaput") }))
	if err := r.Wait(); err == nil {
		t.Fatalf("Wait after panic = nil")
	}
}

func TestRunner_concurrentReaders(t *testing.T) {
	var r Runner
	ensure(r.Start("job", func(p *Progress) error {
		for i := range 1000 {
			p.Set(float64(i)/1000, "")
		}
		return nil
	}))
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last float64
			for r.Running() {
				v := r.Progress().Value()
				if v < last {
					t.Errorf("progress went backwards: %v after %v", v, last)
					return
				}
				last = v
			}
		}()
	}
	ensure(r.Wait())
	wg.Wait()
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
