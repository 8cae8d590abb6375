// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadwell/sched/leaktest"
)

func TestSchedulerDispatchesInDueOrder(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	rec := &recorder{}

	// added out of order, due in order a, b, c
	b := NewSchedulableJob(s, 40*time.Millisecond, func() { rec.Add("b") })
	c := NewSchedulableJob(s, 120*time.Millisecond, func() { rec.Add("c") })
	a := NewSchedulableJob(s, 0, func() { rec.Add("a") })
	s.AddJob(c)
	s.AddJob(a)
	s.AddJob(b)

	s.Start()
	defer s.Stop()

	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() == 3 }))
	assert.Equal(t, []string{"a", "b", "c"}, rec.Get())
	assert.Equal(t, 0, s.PendingCount())
}

func TestSchedulerNeverRunsCancelledJob(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	rec := &recorder{}
	j := NewSchedulableJob(s, 50*time.Millisecond, func() { rec.Add("ran") })
	s.AddJob(j)

	s.Start()
	defer s.Stop()

	j.Cancel()
	require.True(t, waitFor(2*time.Second, func() bool { return s.PendingCount() == 0 }))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, rec.Len())
}

func TestSchedulerCapsDispatchPerPass(t *testing.T) {
	s, _, _ := newTestScheduler(nil, nil, nil)

	now := time.Now()
	jobs := make([]*testJob, 25)
	for i := range jobs {
		jobs[i] = newTestJob(string(rune('a'+i)), now)
		require.True(t, s.pending.Push(jobs[i]))
	}

	s.startWork()

	started := 0
	for _, j := range jobs {
		started += int(j.starts.Load())
	}
	assert.Equal(t, maxStartsPerTick, started)
	assert.Equal(t, 25-maxStartsPerTick, s.PendingCount())
}

func TestSchedulerReschedulesOnSlotRefusal(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	slots := &refusingSlots{}
	s, _, _ := newTestScheduler(nil, slots, nil)

	j := NewSchedulableJob(s, 0, func() { t.Error("refused job must not run") })
	j.SetThreadSlotType("import")
	s.AddJob(j)

	s.Start()
	defer s.Stop()

	require.True(t, waitFor(2*time.Second, func() bool { return slots.acquires.Load() >= 1 }))

	// refusal pushes the job ~10s out, jittered, and keeps it pending
	until := j.TimeUntilDue()
	assert.Greater(t, until, 9*time.Second)
	assert.LessOrEqual(t, until, slotRetryDelay+time.Second)
	assert.Equal(t, 1, s.PendingCount())
}

func TestRepeatingJobRefiresUntilCancelled(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	rec := &recorder{}
	j := NewRepeatingJob(s, 0, 20*time.Millisecond, func() { rec.Add("tick") })
	s.AddJob(j)

	s.Start()
	defer s.Stop()

	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() >= 3 }))

	j.Cancel()
	assert.True(t, j.IsRepeatingWorkFinished())
	require.True(t, waitFor(2*time.Second, func() bool { return s.PendingCount() == 0 }))

	n := rec.Len()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, rec.Len())
}

func TestSingleJobCompletionLatches(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	j := NewSingleJob(s, 10*time.Millisecond, func() {})

	require.False(t, j.IsWorkComplete())
	s.AddJob(j)

	s.Start()
	defer s.Stop()

	require.True(t, j.WaitUntilComplete(2*time.Second))
	assert.True(t, j.IsWorkComplete())
}

func TestWakeMovesJobToFront(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	rec := &recorder{}
	far := NewSchedulableJob(s, 10*time.Second, func() { rec.Add("far") })
	near := NewSchedulableJob(s, 60*time.Millisecond, func() { rec.Add("near") })
	s.AddJob(far)
	s.AddJob(near)

	s.Start()
	defer s.Stop()

	far.Wake()
	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() == 2 }))
	assert.Equal(t, []string{"far", "near"}, rec.Get())
}

func TestWakeOnBusTopic(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, bus := newTestScheduler(nil, nil, nil)
	rec := &recorder{}
	j := NewSchedulableJob(s, time.Hour, func() { rec.Add("woken") })
	unsubscribe := j.WakeOnBusTopic("files.imported")
	defer unsubscribe()
	s.AddJob(j)

	s.Start()
	defer s.Stop()

	bus.Publish("files.imported", nil)
	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() == 1 }))
}

func TestSchedulerSurvivesPanickingJob(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	reporter := &countingReporter{}
	s, _, _ := newTestScheduler(nil, nil, reporter)
	rec := &recorder{}
	bad := NewSchedulableJob(s, 0, func() { panic("job went wrong") })
	good := NewSchedulableJob(s, 50*time.Millisecond, func() { rec.Add("good") })
	s.AddJob(bad)
	s.AddJob(good)

	s.Start()
	defer s.Stop()

	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() == 1 }))
	assert.Equal(t, 1, reporter.Count())
}

func TestDefaultPoolContainsJobPanic(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	ctrl := newStubController()
	reporter := &countingReporter{}
	// default pool: one goroutine per dispatched body
	s := NewJobScheduler(SchedulerConfig{
		Registry:   OpenRegistry(ctrl, nil),
		Controller: ctrl,
		Reporter:   reporter,
	})
	rec := &recorder{}
	s.AddJob(NewSchedulableJob(s, 0, func() { panic("job went wrong") }))
	s.AddJob(NewSchedulableJob(s, 30*time.Millisecond, func() { rec.Add("after") }))

	s.Start()
	defer s.Stop()

	require.True(t, waitFor(2*time.Second, func() bool { return rec.Len() == 1 }))
	assert.Equal(t, 1, reporter.Count())
}

func TestSchedulerSummary(t *testing.T) {
	s, _, _ := newTestScheduler(nil, nil, nil)
	assert.Equal(t, "0 jobs:", s.Summary())

	s.AddJob(NewSchedulableJob(s, time.Hour, func() {}))
	s.AddJob(NewSchedulableJob(s, time.Hour, func() {}))
	assert.Contains(t, s.Summary(), "2 jobs:")
}

func TestSchedulerStartStopLeavesNoGoroutines(t *testing.T) {
	defer leaktest.Check(t, time.Second)()

	s, _, _ := newTestScheduler(nil, nil, nil)
	s.Start()
	s.Stop()
}
