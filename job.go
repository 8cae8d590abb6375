// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	// slotRetryDelay is how far a job is pushed out when it fails its
	// admission check, plus up to a second of jitter.
	slotRetryDelay = 10 * time.Second
	// wakeDelayPoll paces the just-woke-from-sleep wait.
	wakeDelayPoll = time.Second
)

// jitter returns a random duration in [0, 1s).
func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}

// Job is a unit of deferred work the scheduler can order by due time and
// dispatch.
type Job interface {
	ID() string
	NextWorkTime() time.Time
	IsDue() bool
	IsCancelled() bool
	// SlotOK attempts admission; a refusal reschedules the job itself.
	SlotOK() bool
	// StartWork submits the job body to the worker pool. Never runs the
	// body inline.
	StartWork()
	Summary() string
}

// SchedulableJob is deferred work with a due time, a one-way cancellation
// flag, an optional admission slot type, and a run lock guaranteeing at
// most one concurrent execution of this instance.
//
// The owning scheduler holds the only reference that keeps a job pending;
// creators keep theirs for waking and cancelling.
type SchedulableJob struct {
	id     string
	sched  *JobScheduler
	action func()

	// workBody is what StartWork submits to the pool; job variants point
	// it at their own Work method.
	workBody func()

	mu            sync.Mutex
	nextWorkTime  time.Time
	slotType      string
	delayOnWakeup bool

	cancelled atomic.Bool
	working   atomic.Bool

	// runLock serializes executions of this one job, even if it is
	// re-submitted while already running.
	runLock sync.Mutex
}

func newBaseJob(s *JobScheduler, initialDelay time.Duration, action func()) *SchedulableJob {
	j := &SchedulableJob{
		id:           uuid.NewString(),
		sched:        s,
		action:       action,
		nextWorkTime: time.Now().Add(initialDelay),
	}
	j.workBody = j.Work
	return j
}

// NewSchedulableJob creates a one-off job due after initialDelay. Hand it
// to the scheduler with AddJob.
func NewSchedulableJob(s *JobScheduler, initialDelay time.Duration, action func()) *SchedulableJob {
	return newBaseJob(s, initialDelay, action)
}

func (j *SchedulableJob) ID() string { return j.id }

func (j *SchedulableJob) NextWorkTime() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextWorkTime
}

func (j *SchedulableJob) setNextWorkTime(t time.Time) {
	j.mu.Lock()
	j.nextWorkTime = t
	j.mu.Unlock()
}

// TimeUntilDue is negative once the job is due.
func (j *SchedulableJob) TimeUntilDue() time.Duration {
	return time.Until(j.NextWorkTime())
}

func (j *SchedulableJob) IsDue() bool {
	return !time.Now().Before(j.NextWorkTime())
}

func (j *SchedulableJob) IsCancelled() bool {
	return j.cancelled.Load()
}

// CurrentlyWorking reports whether an execution of this job is in flight.
func (j *SchedulableJob) CurrentlyWorking() bool {
	return j.working.Load()
}

// Summary is a human-readable diagnostic line.
func (j *SchedulableJob) Summary() string {
	return fmt.Sprintf("job %s next in %v", j.id[:8], j.TimeUntilDue().Round(time.Millisecond))
}

// Cancel is terminal: the job will never be dispatched again. The
// scheduler prunes it lazily.
func (j *SchedulableJob) Cancel() {
	j.cancelled.Store(true)
	j.sched.JobCancelled()
}

// Wake reschedules the job to run now.
func (j *SchedulableJob) Wake() {
	j.WakeAt(time.Now())
}

// WakeAt reschedules the job to a new due time and tells the scheduler
// its ordering may be stale. The re-sort happens lazily.
func (j *SchedulableJob) WakeAt(t time.Time) {
	j.setNextWorkTime(t)
	j.sched.WorkTimesHaveChanged()
}

// WakeOnBusTopic wakes the job whenever topic is published. Returns the
// unsubscribe function.
func (j *SchedulableJob) WakeOnBusTopic(topic string) func() {
	if j.sched.bus == nil {
		return func() {}
	}
	return j.sched.bus.Subscribe(topic, func(any) { j.Wake() })
}

// SetThreadSlotType binds the job to a named admission bucket.
func (j *SchedulableJob) SetThreadSlotType(slotType string) {
	j.mu.Lock()
	j.slotType = slotType
	j.mu.Unlock()
}

// ShouldDelayOnWakeup makes the job hold off while the host is still
// groggy after a sleep resume.
func (j *SchedulableJob) ShouldDelayOnWakeup(v bool) {
	j.mu.Lock()
	j.delayOnWakeup = v
	j.mu.Unlock()
}

func (j *SchedulableJob) shouldDelayOnWakeup() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.delayOnWakeup
}

func (j *SchedulableJob) getSlotType() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.slotType
}

// SlotOK asks the slot provider for this job's admission permit. On
// refusal the job is pushed ~10s into the future, with jitter, so it
// retries later without spinning. The due time moves strictly forward
// on every refusal, even across rapid retries. No slot type means
// always admitted.
func (j *SchedulableJob) SlotOK() bool {
	slotType := j.getSlotType()
	if slotType == "" || j.sched.slots == nil {
		return true
	}
	if j.sched.slots.AcquireSlot(slotType) {
		return true
	}
	next := time.Now().Add(slotRetryDelay + jitter())
	j.mu.Lock()
	if !next.After(j.nextWorkTime) {
		next = j.nextWorkTime.Add(time.Millisecond)
	}
	j.nextWorkTime = next
	j.mu.Unlock()
	return false
}

// StartWork submits the job body to the worker pool. No-op when already
// cancelled.
func (j *SchedulableJob) StartWork() {
	if j.cancelled.Load() {
		return
	}
	j.working.Store(true)
	j.sched.pool.CallToThread(j.workBody)
}

// Work runs the job body on a pool thread. Exposed so pool collaborators
// can invoke it; the scheduler only ever goes through StartWork.
func (j *SchedulableJob) Work() {
	_ = j.work()
}

// work runs the action under the run lock. The held admission slot is
// released and the working flag cleared whatever the outcome; a panic
// in the action is contained here, so it never reaches the top of a
// pool goroutine. Returns ErrShutdown when the sleep-delay poll
// observed shutdown.
func (j *SchedulableJob) work() error {
	defer func() {
		if slotType := j.getSlotType(); slotType != "" && j.sched.slots != nil {
			j.sched.slots.ReleaseSlot(slotType)
		}
		j.working.Store(false)
	}()

	if j.shouldDelayOnWakeup() {
		for j.sched.ctrl.JustWokeFromSleep() {
			if j.sched.IsShuttingDown() {
				return ErrShutdown
			}
			time.Sleep(wakeDelayPoll)
		}
	}

	j.runLock.Lock()
	defer j.runLock.Unlock()
	j.runAction()
	return nil
}

// runAction executes the job body with panic containment, logging and
// reporting like any other failed work cycle.
func (j *SchedulableJob) runAction() {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Newf("job %s: work action panic: %v", j.id[:8], r)
			j.sched.logger.Errorw("job work failed", "job", j.id[:8], "error", err)
			if j.sched.reporter != nil {
				j.sched.reporter.ReportError(err)
			}
		}
	}()
	j.action()
}
