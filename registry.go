// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sweepInterval bounds how often dead handles are cleared out. The sweep
// runs opportunistically on lookup, never on its own timer.
const sweepInterval = 600 * time.Second

// HandleClass splits loops into daemon-class and everything else. The
// controller carries a distinct global shutdown flag for each class.
type HandleClass int

const (
	ClassWorker HandleClass = iota
	ClassDaemon
)

// Handle identifies one long-running loop to the Registry. Goroutines
// carry no identity of their own, so loop owners hold their handle
// explicitly and pass it to every shutdown check.
type Handle struct {
	id    string
	name  string
	class HandleClass

	mu           sync.Mutex
	shuttingDown bool
	closed       bool
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

// MarkShuttingDown is one-way and idempotent: the flag is never cleared.
func (h *Handle) MarkShuttingDown() {
	h.mu.Lock()
	h.shuttingDown = true
	h.mu.Unlock()
}

func (h *Handle) isShuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shuttingDown
}

// Close marks the handle dead so the next registry sweep drops it. The
// loop that owns the handle calls this as it exits.
func (h *Handle) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Registry tracks live loop handles and their shutdown state. It replaces
// a process-wide table: open one per application and pass it to the
// components that need it. All mutation happens under one mutex.
type Registry struct {
	ctrl   Controller
	logger *zap.SugaredLogger

	mu        sync.Mutex
	handles   map[string]*Handle
	nextSweep time.Time
	closed    bool
}

// OpenRegistry creates a Registry bound to the application controller.
func OpenRegistry(ctrl Controller, logger *zap.SugaredLogger) *Registry {
	if ctrl == nil {
		ctrl = NopController{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		ctrl:      ctrl,
		logger:    logger,
		handles:   map[string]*Handle{},
		nextSweep: time.Now().Add(sweepInterval),
	}
}

// NewHandle registers a new loop and returns its handle.
func (r *Registry) NewHandle(name string, class HandleClass) *Handle {
	h := &Handle{
		id:    uuid.NewString(),
		name:  name,
		class: class,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(time.Now())
	r.handles[h.id] = h
	return h
}

// IsShuttingDown reports whether the loop behind h should stop: a fast
// process exit, the global flag for the handle's class, a closed
// registry, or the handle's own one-way flag.
func (r *Registry) IsShuttingDown(h *Handle) bool {
	if r.ctrl.DoingFastExit() {
		return true
	}
	if h.class == ClassDaemon {
		if r.ctrl.DaemonsShuttingDown() {
			return true
		}
	} else if r.ctrl.WorkersShuttingDown() {
		return true
	}

	r.mu.Lock()
	closed := r.closed
	r.sweepLocked(time.Now())
	r.mu.Unlock()

	return closed || h.isShuttingDown()
}

// CheckShutdown returns ErrShutdown when the loop behind h should stop.
func (r *Registry) CheckShutdown(h *Handle) error {
	if r.IsShuttingDown(h) {
		return ErrShutdown
	}
	return nil
}

// MarkShuttingDown flags a single loop for shutdown. Idempotent.
func (r *Registry) MarkShuttingDown(h *Handle) {
	h.MarkShuttingDown()
}

// Len reports the number of registered handles, dead or alive.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close flags every current and future lookup as shutting down.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// sweepLocked drops closed handles once per sweepInterval. It walks a
// snapshot of the keys so deletion does not race the iteration.
func (r *Registry) sweepLocked(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	r.nextSweep = now.Add(sweepInterval)

	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	removed := 0
	for _, id := range ids {
		if r.handles[id].isClosed() {
			delete(r.handles, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debugw("registry swept dead handles", "removed", removed, "remaining", len(r.handles))
	}
}
