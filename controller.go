// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

// Controller exposes the application state the scheduling core polls:
// shutdown and sleep flags, and the "is now a good time" predicates that
// gate heavy periodic work.
type Controller interface {
	// DoingFastExit reports that the process is tearing down without
	// ceremony; every loop should stop at its next checkpoint.
	DoingFastExit() bool
	// DaemonsShuttingDown is the global shutdown flag for daemon-class
	// loops; WorkersShuttingDown covers everything else.
	DaemonsShuttingDown() bool
	WorkersShuttingDown() bool
	// JustWokeFromSleep reports that the host recently resumed from a
	// low-power state. Jobs configured to delay on wakeup poll this.
	JustWokeFromSleep() bool
	// GoodTimeToStartBackgroundWork gates maintenance work that should
	// not compete with interactive use; GoodTimeToStartForegroundWork
	// gates user-visible work that should not pile onto a busy session.
	GoodTimeToStartBackgroundWork() bool
	GoodTimeToStartForegroundWork() bool
}

// WorkerPool runs submitted calls asynchronously. The scheduler hands job
// bodies to a pool rather than executing them on its own goroutine.
type WorkerPool interface {
	CallToThread(fn func())
}

// GoroutinePool is the trivial WorkerPool: one goroutine per call.
type GoroutinePool struct{}

func (GoroutinePool) CallToThread(fn func()) { go fn() }

// SlotProvider hands out named counting permits. A job bound to a slot
// type may only start after acquiring a permit for it, which bounds how
// many jobs of that category run at once.
type SlotProvider interface {
	AcquireSlot(slotType string) bool
	ReleaseSlot(slotType string)
}

// ErrorReporter receives unexpected, non-fatal errors raised by caller
// supplied work actions. Reporting never interrupts the hosting loop.
type ErrorReporter interface {
	ReportError(err error)
}

// NopController reports no shutdown state and admits all work. Useful as
// a default and in tests.
type NopController struct{}

func (NopController) DoingFastExit() bool                 { return false }
func (NopController) DaemonsShuttingDown() bool           { return false }
func (NopController) WorkersShuttingDown() bool           { return false }
func (NopController) JustWokeFromSleep() bool             { return false }
func (NopController) GoodTimeToStartBackgroundWork() bool { return true }
func (NopController) GoodTimeToStartForegroundWork() bool { return true }
