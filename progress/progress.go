// Package progress publishes the progress of a long-running open/save job
// from the worker goroutine to any number of observers.
//
// Only one job runs at a time. Observers read snapshots and never touch the
// worker's buffers until the job has finished.
package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
)

var ErrBusy = errors.New("another job is already running")

// Progress is a monotonically increasing value in [0, 1] plus an optional
// description of the current stage. A nil *Progress ignores updates.
type Progress struct {
	value atomic.Uint64 // float64 bits

	mut     sync.Mutex
	comment string
}

// Set publishes v if it is greater than the current value. The comment is
// replaced unless empty.
func (p *Progress) Set(v float64, comment string) {
	if p == nil {
		return
	}
	v = min(max(v, 0), 1)
	for {
		old := p.value.Load()
		if v <= math.Float64frombits(old) {
			break
		}
		if p.value.CompareAndSwap(old, math.Float64bits(v)) {
			break
		}
	}
	if comment != "" {
		p.mut.Lock()
		p.comment = comment
		p.mut.Unlock()
	}
}

func (p *Progress) Value() float64 {
	if p == nil {
		return 0
	}
	return math.Float64frombits(p.value.Load())
}

func (p *Progress) Snapshot() (float64, string) {
	if p == nil {
		return 0, ""
	}
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.Value(), p.comment
}

// Sub maps [0, 1] progress of a sub-stage onto [from, to] of p.
func (p *Progress) Sub(from, to float64) func(v float64, comment string) {
	return func(v float64, comment string) {
		p.Set(from+(to-from)*v, comment)
	}
}

// Runner executes at most one job at a time on a background goroutine.
type Runner struct {
	Logger *slog.Logger

	mut      sync.Mutex
	running  bool
	name     string
	progress *Progress
	done     chan struct{}
	err      error
}

// Start launches fn unless a job is already running, in which case it returns
// ErrBusy without starting anything.
func (r *Runner) Start(name string, fn func(p *Progress) error) error {
	r.mut.Lock()
	defer r.mut.Unlock()
	if r.running {
		return fmt.Errorf("%w: %s", ErrBusy, r.name)
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Progress{}
	done := make(chan struct{})
	r.running, r.name, r.progress, r.done, r.err = true, name, p, done, nil

	go func() {
		err := runRecovering(fn, p)
		if err != nil {
			logger.Error("progress: job failed", slog.String("job", name), slog.Any("err", err))
		} else {
			p.Set(1, "done")
		}
		r.mut.Lock()
		r.running = false
		r.err = err
		r.mut.Unlock()
		close(done)
	}()
	return nil
}

func runRecovering(fn func(p *Progress) error, p *Progress) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("panic: %v", e)
		}
	}()
	return fn(p)
}

func (r *Runner) Running() bool {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.running
}

// Progress returns the progress of the current or last job.
func (r *Runner) Progress() *Progress {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.progress
}

// Wait blocks until the current job finishes and returns its error. It
// returns nil immediately if no job was ever started.
func (r *Runner) Wait() error {
	r.mut.Lock()
	done := r.done
	r.mut.Unlock()
	if done == nil {
		return nil
	}
	<-done
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.err
}
