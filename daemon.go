// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// daemonWaitSlice bounds every suspension so shutdown flags are observed
// within a second of being set.
const daemonWaitSlice = time.Second

// Daemon is the base of a long-lived cooperative loop: it can be told to
// wake and to shut down, never preempted. The loop must poll its shutdown
// state between blocking steps; Shutdown only sets a flag and wakes it.
//
// Daemon-class loops subscribe to the wake-all and shutdown broadcast
// topics on construction.
type Daemon struct {
	name     string
	registry *Registry
	handle   *Handle
	bus      Bus
	logger   *zap.SugaredLogger

	wake   *event
	unsubs []func()
	wg     sync.WaitGroup

	mu      sync.Mutex
	summary string
}

func newDaemon(name string, class HandleClass, registry *Registry, bus Bus, logger *zap.SugaredLogger) *Daemon {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Daemon{
		name:     name,
		registry: registry,
		handle:   registry.NewHandle(name, class),
		bus:      bus,
		logger:   logger,
		wake:     newEvent(),
		summary:  "unknown job",
	}
	if bus != nil {
		if class == ClassDaemon {
			d.unsubs = append(d.unsubs, bus.Subscribe(TopicWakeDaemons, func(any) { d.Wake() }))
		}
		d.unsubs = append(d.unsubs, bus.Subscribe(TopicShutdown, func(any) { d.Shutdown() }))
	}
	return d
}

func (d *Daemon) Name() string { return d.name }

// Wake ends any wakeable suspension early.
func (d *Daemon) Wake() { d.wake.Set() }

// Shutdown marks the loop shutting down and wakes it so the flag is
// observed promptly.
func (d *Daemon) Shutdown() {
	d.handle.MarkShuttingDown()
	d.wake.Set()
}

func (d *Daemon) IsShuttingDown() bool {
	return d.registry.IsShuttingDown(d.handle)
}

// CheckShutdown returns ErrShutdown when the loop should stop. Loops call
// it between every blocking or long-running step.
func (d *Daemon) CheckShutdown() error {
	return d.registry.CheckShutdown(d.handle)
}

// CurrentJobSummary describes what the loop is doing, for diagnostics.
func (d *Daemon) CurrentJobSummary() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.summary
}

func (d *Daemon) setSummary(s string) {
	d.mu.Lock()
	d.summary = s
	d.mu.Unlock()
}

// wait suspends for dur in bounded slices, re-checking shutdown after each
// slice. When wakeable, a Wake call ends the wait early with a nil error;
// a non-wakeable wait is a hard gate that only shutdown can interrupt.
func (d *Daemon) wait(dur time.Duration, wakeable bool) error {
	deadline := time.Now().Add(dur)
	for time.Now().Before(deadline) {
		slice := time.Until(deadline)
		if slice > daemonWaitSlice {
			slice = daemonWaitSlice
		}
		if wakeable {
			if d.wake.Wait(slice) {
				d.wake.Clear()
				return nil
			}
		} else {
			time.Sleep(slice)
		}
		if err := d.CheckShutdown(); err != nil {
			return err
		}
	}
	return nil
}

// close releases bus subscriptions and marks the handle dead. Loop
// goroutines defer this on exit.
func (d *Daemon) close() {
	for _, unsub := range d.unsubs {
		unsub()
	}
	d.handle.Close()
}
