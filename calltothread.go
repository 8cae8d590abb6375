// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// queueIdleWait bounds the wait on an apparently empty queue; the
	// emptiness check is heuristic, so the wait must re-check.
	queueIdleWait = 10 * time.Second
	// queueDequeueWait bounds one dequeue attempt.
	queueDequeueWait = time.Second
	// queueYield avoids a degenerate busy spin when the queue is fed a
	// stream of trivial calls.
	queueYield = 100 * time.Microsecond
)

// CallToThread is a pool element that drains a FIFO of queued calls one at
// a time. It reports busy from the moment a call is queued, so pool
// selection does not double-assign a worker with queued-but-unstarted
// work.
type CallToThread struct {
	*Daemon
	reporter ErrorReporter

	qmu   sync.Mutex
	queue []func()

	busy atomic.Bool
}

// NewCallToThread builds a queue worker. Call Start to run it. A fresh
// worker reports busy until its first pass so two quick successive pool
// picks do not land on the same thread.
func NewCallToThread(registry *Registry, bus Bus, reporter ErrorReporter, logger *zap.SugaredLogger, name string) *CallToThread {
	c := &CallToThread{
		Daemon:   newDaemon(name, ClassDaemon, registry, bus, logger),
		reporter: reporter,
	}
	c.busy.Store(true)
	return c
}

// CurrentlyWorking reports whether the worker has queued or in-flight
// work. Pool reuse heuristics key off this.
func (c *CallToThread) CurrentlyWorking() bool {
	return c.busy.Load()
}

// Put queues fn and wakes the worker. The busy flag is raised before the
// enqueue so the worker never looks idle with pending work.
func (c *CallToThread) Put(fn func()) {
	c.busy.Store(true)
	c.qmu.Lock()
	c.queue = append(c.queue, fn)
	c.qmu.Unlock()
	c.Wake()
}

// CallToThread implements WorkerPool.
func (c *CallToThread) CallToThread(fn func()) { c.Put(fn) }

// Start runs the drain loop on its own goroutine.
func (c *CallToThread) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop shuts the worker down and waits for the loop to exit. Queued calls
// that have not started are dropped.
func (c *CallToThread) Stop() {
	c.Shutdown()
	c.wg.Wait()
}

func (c *CallToThread) empty() bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	return len(c.queue) == 0
}

// popWait dequeues the head call, waiting up to timeout for one to
// arrive.
func (c *CallToThread) popWait(timeout time.Duration) (func(), bool) {
	deadline := time.Now().Add(timeout)
	for {
		c.qmu.Lock()
		if len(c.queue) > 0 {
			fn := c.queue[0]
			c.queue = c.queue[1:]
			c.qmu.Unlock()
			return fn, true
		}
		c.qmu.Unlock()
		if !time.Now().Before(deadline) {
			return nil, false
		}
		// clear a consumed wake, or a set event satisfies every
		// subsequent lap without pausing
		if c.wake.Wait(10 * time.Millisecond) {
			c.wake.Clear()
		}
	}
}

func (c *CallToThread) run() {
	defer c.wg.Done()
	defer c.close()

	for {
		// The emptiness check and the wait are not atomic with Put. We
		// are the only consumer, so a producer racing past the check at
		// worst costs one bounded wait before the add is observed.
		for c.empty() {
			if c.CheckShutdown() != nil {
				return
			}
			c.wake.Wait(queueIdleWait)
			c.wake.Clear()
		}

		if c.CheckShutdown() != nil {
			return
		}

		fn, ok := c.popWait(queueDequeueWait)
		if !ok {
			// Should not happen while we are the only consumer, but
			// don't make a business of hanging on it.
			c.logger.Debugw("queue worker observed empty dequeue", "worker", c.name)
			c.busy.Store(false)
			continue
		}

		c.runOne(fn)
		time.Sleep(queueYield)
	}
}

// runOne executes a queued call with panic isolation; the busy flag
// clears whatever the outcome.
func (c *CallToThread) runOne(fn func()) {
	c.setSummary("running queued call")
	defer func() {
		c.busy.Store(false)
		c.setSummary("idle")
		if r := recover(); r != nil {
			err := errors.Newf("queue worker %s: queued call panic: %v", c.name, r)
			c.logger.Errorw("queued call failed", "worker", c.name, "error", err)
			if c.reporter != nil {
				c.reporter.ReportError(err)
			}
		}
	}()
	fn()
}
