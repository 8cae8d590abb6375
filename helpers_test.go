// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// stubController is a Controller whose flags tests flip at will.
type stubController struct {
	fastExit     atomic.Bool
	daemonsDown  atomic.Bool
	workersDown  atomic.Bool
	woke         atomic.Bool
	backgroundOK atomic.Bool
	foregroundOK atomic.Bool
}

func newStubController() *stubController {
	c := &stubController{}
	c.backgroundOK.Store(true)
	c.foregroundOK.Store(true)
	return c
}

func (c *stubController) DoingFastExit() bool                 { return c.fastExit.Load() }
func (c *stubController) DaemonsShuttingDown() bool           { return c.daemonsDown.Load() }
func (c *stubController) WorkersShuttingDown() bool           { return c.workersDown.Load() }
func (c *stubController) JustWokeFromSleep() bool             { return c.woke.Load() }
func (c *stubController) GoodTimeToStartBackgroundWork() bool { return c.backgroundOK.Load() }
func (c *stubController) GoodTimeToStartForegroundWork() bool { return c.foregroundOK.Load() }

// recorder collects execution order across goroutines.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) Add(key string) {
	r.mu.Lock()
	r.order = append(r.order, key)
	r.mu.Unlock()
}

func (r *recorder) Get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// inlinePool runs submissions synchronously, so execution order in tests
// equals dispatch order.
type inlinePool struct{}

func (inlinePool) CallToThread(fn func()) { fn() }

// countingReporter counts reported errors.
type countingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *countingReporter) ReportError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *countingReporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

// refusingSlots refuses every acquire and counts the attempts.
type refusingSlots struct {
	acquires atomic.Int64
}

func (s *refusingSlots) AcquireSlot(string) bool {
	s.acquires.Add(1)
	return false
}

func (s *refusingSlots) ReleaseSlot(string) {}

// testJob is a bare Job implementation for queue and dispatch-cap tests.
type testJob struct {
	id      string
	mu      sync.Mutex
	due     time.Time
	cancel  atomic.Bool
	starts  atomic.Int64
	slotOK  func() bool
	onStart func()
}

func newTestJob(id string, due time.Time) *testJob {
	return &testJob{id: id, due: due}
}

func (j *testJob) ID() string { return j.id }

func (j *testJob) NextWorkTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.due
}

func (j *testJob) setDue(t time.Time) {
	j.mu.Lock()
	j.due = t
	j.mu.Unlock()
}

func (j *testJob) IsDue() bool {
	return !time.Now().Before(j.NextWorkTime())
}

func (j *testJob) IsCancelled() bool { return j.cancel.Load() }

func (j *testJob) SlotOK() bool {
	if j.slotOK != nil {
		return j.slotOK()
	}
	return true
}

func (j *testJob) StartWork() {
	j.starts.Add(1)
	if j.onStart != nil {
		j.onStart()
	}
}

func (j *testJob) Summary() string { return "test job " + j.id }

// newTestScheduler wires a scheduler with an inline pool and a stub
// controller, not yet started.
func newTestScheduler(ctrl *stubController, slots SlotProvider, reporter ErrorReporter) (*JobScheduler, *Registry, *MemoryBus) {
	if ctrl == nil {
		ctrl = newStubController()
	}
	registry := OpenRegistry(ctrl, nil)
	bus := NewMemoryBus()
	s := NewJobScheduler(SchedulerConfig{
		Registry:   registry,
		Bus:        bus,
		Controller: ctrl,
		Pool:       inlinePool{},
		Slots:      slots,
		Reporter:   reporter,
	})
	return s, registry, bus
}

// waitFor polls cond up to timeout, reporting whether it became true.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
