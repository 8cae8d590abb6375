// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// SingleJob runs once and latches a completion signal so callers can
// block until it is done.
type SingleJob struct {
	*SchedulableJob
	done *event
}

// NewSingleJob creates a fire-once job due after initialDelay.
func NewSingleJob(s *JobScheduler, initialDelay time.Duration, action func()) *SingleJob {
	j := &SingleJob{
		SchedulableJob: newBaseJob(s, initialDelay, action),
		done:           newEvent(),
	}
	j.workBody = j.Work
	return j
}

// IsWorkComplete reports whether the single run finished. It latches: once
// true it never reverts.
func (j *SingleJob) IsWorkComplete() bool {
	return j.done.IsSet()
}

// WaitUntilComplete blocks until the run finishes or the timeout elapses,
// reporting which.
func (j *SingleJob) WaitUntilComplete(timeout time.Duration) bool {
	return j.done.Wait(timeout)
}

// Work runs the job body and sets the completion signal exactly once,
// whatever the action's outcome. A shutdown observed before the body ran
// leaves the signal unset; a panic still sets it on the way out.
func (j *SingleJob) Work() {
	completed := true
	defer func() {
		if completed {
			j.done.Set()
		}
	}()
	if err := j.SchedulableJob.work(); IsShutdown(err) {
		completed = false
	}
}

// RepeatingJob reschedules itself to now+period after every run, until
// cancelled. The scheduler needs no special-case repeat logic.
type RepeatingJob struct {
	*SchedulableJob

	pmu    sync.Mutex
	period time.Duration

	// stopRepeating closes the race between Cancel and an execution that
	// was already popped: a stopped job neither starts nor reschedules,
	// even if the cancellation flag was observed too late.
	stopRepeating atomic.Bool
}

// NewRepeatingJob creates a job due after initialDelay that then fires
// every period.
func NewRepeatingJob(s *JobScheduler, initialDelay, period time.Duration, action func()) *RepeatingJob {
	j := &RepeatingJob{
		SchedulableJob: newBaseJob(s, initialDelay, action),
	}
	j.SetPeriod(period)
	j.workBody = j.Work
	return j
}

// Cancel stops the repetition as well as the pending dispatch.
func (j *RepeatingJob) Cancel() {
	j.stopRepeating.Store(true)
	j.SchedulableJob.Cancel()
}

// IsRepeatingWorkFinished reports whether the job will ever fire again.
func (j *RepeatingJob) IsRepeatingWorkFinished() bool {
	return j.stopRepeating.Load()
}

// Delay pushes the next run out by d without touching the period.
func (j *RepeatingJob) Delay(d time.Duration) {
	j.WakeAt(time.Now().Add(d))
}

// SetPeriod adjusts the repeat period. Long periods get up to a second of
// jitter so many jobs sharing one period don't fire in lockstep.
func (j *RepeatingJob) SetPeriod(p time.Duration) {
	if p > 10*time.Second {
		p += jitter()
	}
	j.pmu.Lock()
	j.period = p
	j.pmu.Unlock()
}

func (j *RepeatingJob) getPeriod() time.Duration {
	j.pmu.Lock()
	defer j.pmu.Unlock()
	return j.period
}

// StartWork is a no-op once repetition has stopped, even if the
// cancellation flag has not been observed yet.
func (j *RepeatingJob) StartWork() {
	if j.stopRepeating.Load() {
		return
	}
	j.SchedulableJob.StartWork()
}

// Work runs the job body, then re-adds the job at now+period unless
// repetition has stopped.
func (j *RepeatingJob) Work() {
	_ = j.SchedulableJob.work()
	if j.stopRepeating.Load() {
		return
	}
	j.setNextWorkTime(time.Now().Add(j.getPeriod()))
	j.sched.AddJob(j)
}
