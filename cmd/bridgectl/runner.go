package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stemsi/problem-bridge/internal/bridge"
	"github.com/stemsi/problem-bridge/internal/model"
)

// runner tracks the backend calls the dispatcher spawns so the command can
// wait for them before exiting.
type runner struct {
	inflight atomic.Int64
}

func newRunner() *runner { return &runner{} }

func (r *runner) Go(f func()) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Add(-1)
		f()
	}()
}

// settle waits until no save is scheduled and no call is in flight.
func (r *runner) settle(ctx context.Context, d *bridge.Dispatcher) error {
	for {
		if !d.SavePending() && r.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// printPage keeps the last grade; state changes are visible through the
// controller snapshot.
type printPage struct {
	mu    sync.Mutex
	grade *model.StudentGrade
}

func (p *printPage) StateChanged(model.BridgeSnapshot) {}

func (p *printPage) GradeChanged(g model.StudentGrade) {
	p.mu.Lock()
	p.grade = &g
	p.mu.Unlock()
}

// Grade returns the last grade received, or nil.
func (p *printPage) Grade() *model.StudentGrade {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grade
}
