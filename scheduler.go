// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	// emptyWait is the idle-loop wait when nothing is pending.
	emptyWait = 200 * time.Millisecond
	// maxHeadWait caps the wait until the head job's due time, so lazily
	// flagged re-sorts and cancellations are applied within a second.
	maxHeadWait = time.Second
	// maxStartsPerTick caps dispatch per loop pass so a backlog (after a
	// long suspend, say) cannot flood the worker pool in one burst.
	maxStartsPerTick = 10
	// schedulerYield breaks up a degenerate spin between full passes.
	schedulerYield = 100 * time.Microsecond
)

// SchedulerConfig wires the JobScheduler's collaborators. Everything has
// a working default.
type SchedulerConfig struct {
	Registry   *Registry
	Bus        Bus
	Controller Controller
	// Pool executes job bodies; defaults to one goroutine per call.
	Pool WorkerPool
	// Slots is the admission-control provider; nil admits everything.
	Slots    SlotProvider
	Reporter ErrorReporter
	Logger   *zap.SugaredLogger
}

// JobScheduler owns the pending-job collection on a dedicated goroutine
// and dispatches due jobs to the worker pool in ascending due-time order.
// Re-sorting and cancellation pruning are flagged by jobs and applied
// lazily, just before the next dispatch decision.
type JobScheduler struct {
	*Daemon

	ctrl     Controller
	pool     WorkerPool
	slots    SlotProvider
	reporter ErrorReporter

	pending *jobQueue

	cancelFilterNeeded atomic.Bool
	sortNeeded         atomic.Bool
}

// NewJobScheduler builds a scheduler. Call Start to run its dispatch
// loop.
func NewJobScheduler(cfg SchedulerConfig) *JobScheduler {
	if cfg.Controller == nil {
		cfg.Controller = NopController{}
	}
	if cfg.Registry == nil {
		cfg.Registry = OpenRegistry(cfg.Controller, cfg.Logger)
	}
	if cfg.Pool == nil {
		cfg.Pool = GoroutinePool{}
	}
	return &JobScheduler{
		Daemon:   newDaemon("job scheduler", ClassWorker, cfg.Registry, cfg.Bus, cfg.Logger),
		ctrl:     cfg.Controller,
		pool:     cfg.Pool,
		slots:    cfg.Slots,
		reporter: cfg.Reporter,
		pending:  newJobQueue(),
	}
}

// Start runs the dispatch loop on its own goroutine.
func (s *JobScheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop shuts the scheduler down and waits for the loop to exit. Pending
// jobs are dropped; in-flight job bodies finish on the pool.
func (s *JobScheduler) Stop() {
	s.Shutdown()
	s.wg.Wait()
}

// AddJob inserts a job and wakes a sleeping dispatch loop. Adding a job
// already pending is refused until it has been popped.
func (s *JobScheduler) AddJob(j Job) {
	if s.pending.Push(j) {
		s.logger.Debugw("job added", "job", j.Summary())
	}
	s.wake.Set()
}

// JobCancelled flags lazy cancellation pruning. Jobs call this from
// Cancel; nothing is scanned synchronously.
func (s *JobScheduler) JobCancelled() {
	s.cancelFilterNeeded.Store(true)
}

// WorkTimesHaveChanged flags a lazy re-sort. Jobs call this from Wake.
func (s *JobScheduler) WorkTimesHaveChanged() {
	s.sortNeeded.Store(true)
}

// PendingCount reports the number of jobs waiting to be dispatched.
func (s *JobScheduler) PendingCount() int {
	return s.pending.Len()
}

// Summary is a human-readable listing of the pending jobs.
func (s *JobScheduler) Summary() string {
	lines := s.pending.Summaries()
	var b strings.Builder
	fmt.Fprintf(&b, "%d jobs:", len(lines))
	for _, line := range lines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

func (s *JobScheduler) run() {
	defer s.wg.Done()
	defer s.close()

	for {
		if err := s.safeTick(); err != nil {
			if IsShutdown(err) {
				return
			}
			s.logger.Errorw("scheduler tick failed", "error", err)
			if s.reporter != nil {
				s.reporter.ReportError(err)
			}
		}
		time.Sleep(schedulerYield)
	}
}

// safeTick contains panics so a misbehaving job cannot kill the
// scheduler; only shutdown terminates the loop.
func (s *JobScheduler) safeTick() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("scheduler: tick panic: %v", r)
		}
	}()
	return s.tick()
}

// tick waits out the idle phase, applying lazily flagged maintenance,
// then dispatches due work.
func (s *JobScheduler) tick() error {
	for s.noWorkToStart() {
		if err := s.CheckShutdown(); err != nil {
			return err
		}

		if s.cancelFilterNeeded.Swap(false) {
			if removed := s.pending.FilterCancelled(); removed > 0 {
				s.logger.Debugw("pruned cancelled jobs", "removed", removed)
			}
		}
		if s.sortNeeded.Swap(false) {
			s.pending.Rebuild()
			// a rebuild may have brought a now-due job to the front
			continue
		}

		s.wake.Wait(s.loopWaitTime())
		s.wake.Clear()
	}

	s.startWork()
	return nil
}

func (s *JobScheduler) noWorkToStart() bool {
	head := s.pending.Peek()
	return head == nil || !head.IsDue()
}

func (s *JobScheduler) loopWaitTime() time.Duration {
	head := s.pending.Peek()
	if head == nil {
		return emptyWait
	}
	until := time.Until(head.NextWorkTime())
	if until > maxHeadWait {
		return maxHeadWait
	}
	return until
}

// startWork pops and dispatches due jobs, earliest first, up to the
// per-tick cap. Cancelled jobs are dropped silently; jobs refused
// admission go back in at the delayed due time SlotOK assigned them.
func (s *JobScheduler) startWork() {
	started := 0
	for started < maxStartsPerTick {
		job := s.pending.Pop()
		if job == nil {
			break
		}
		if !job.IsDue() {
			// everything behind it in the heap is due even later
			s.pending.Push(job)
			break
		}
		if job.IsCancelled() {
			continue
		}
		if job.SlotOK() {
			job.StartWork()
			started++
		} else {
			s.pending.Push(job)
		}
	}
}
