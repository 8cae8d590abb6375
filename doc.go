// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

/*
Package sched runs background and periodic work without blocking
interactive paths: cooperatively cancellable loops, periodic workers
gated by admission policy, queue workers for producer/consumer calls,
and a central priority scheduler that orders deferred jobs by due time.

Everything shuts down cooperatively. Loops poll shared shutdown state at
checkpoints between bounded waits; nothing is preempted, so an in-flight
work action always finishes its current run.

Usage

Open a registry, build a scheduler, hand it jobs:

	registry := sched.OpenRegistry(ctrl, logger)
	bus := sched.NewMemoryBus()

	scheduler := sched.NewJobScheduler(sched.SchedulerConfig{
		Registry:   registry,
		Bus:        bus,
		Controller: ctrl,
		Logger:     logger,
	})
	scheduler.Start()

	job := sched.NewRepeatingJob(scheduler, 0, 5*time.Minute, pruneCaches)
	scheduler.AddJob(job)

	// later
	job.Cancel()
	scheduler.Stop()

Jobs never execute on the scheduler goroutine; their bodies are submitted
to a worker pool. Jobs bound to a slot type only start after acquiring a
permit from the SlotProvider, which bounds how many jobs of one category
run at once; a refused job is retried ten-odd seconds later rather than
dropped or blocked.

Periodic maintenance that should not compete with interactive use runs on
a Worker gated by the controller's good-time predicates:

	w := sched.NewBackgroundWorker(registry, bus, ctrl, reporter, logger,
		sched.DefaultWorkerConfig("vacuum"), vacuumDatabase)
	w.Start()
*/
package sched
