// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// admissionPollInterval is how often a gated worker re-asks its admission
// predicate. This wait is a hard gate: Wake cannot cut it short.
const admissionPollInterval = time.Second

// WorkerConfig configures a periodic worker loop.
type WorkerConfig struct {
	// Name identifies the worker in logs and diagnostics.
	Name string
	// Period is the pause between work invocations.
	Period time.Duration
	// InitWait delays the first cycle after Start.
	InitWait time.Duration
	// PreCallWait runs before every admission check and cannot be cut
	// short by Wake.
	PreCallWait time.Duration
	// Topics are bus topics whose publication wakes the worker early.
	Topics []string
	// Admission gates each invocation; nil admits always.
	Admission func() bool
	// PreCall is an observability hook invoked just before the work
	// action.
	PreCall func()
}

// DefaultWorkerConfig returns the defaults long-lived maintenance work
// tends to want: an hourly period and a short startup grace.
func DefaultWorkerConfig(name string) WorkerConfig {
	return WorkerConfig{
		Name:     name,
		Period:   time.Hour,
		InitWait: 3 * time.Second,
	}
}

// Worker invokes a work action on a period, gated by an admission
// predicate. A failing or panicking work action is logged and reported
// but never fatal; only shutdown ends the loop.
type Worker struct {
	*Daemon
	cfg      WorkerConfig
	work     func() error
	reporter ErrorReporter
}

// NewWorker builds a periodic worker. Call Start to run it.
func NewWorker(registry *Registry, bus Bus, reporter ErrorReporter, logger *zap.SugaredLogger, cfg WorkerConfig, work func() error) *Worker {
	w := &Worker{
		Daemon:   newDaemon(cfg.Name, ClassDaemon, registry, bus, logger),
		cfg:      cfg,
		work:     work,
		reporter: reporter,
	}
	if bus != nil {
		for _, topic := range cfg.Topics {
			w.unsubs = append(w.unsubs, bus.Subscribe(topic, func(any) { w.Wake() }))
		}
	}
	return w
}

// NewBackgroundWorker gates the worker on the controller's background
// predicate, keeping heavy maintenance off interactive time.
func NewBackgroundWorker(registry *Registry, bus Bus, ctrl Controller, reporter ErrorReporter, logger *zap.SugaredLogger, cfg WorkerConfig, work func() error) *Worker {
	cfg.Admission = ctrl.GoodTimeToStartBackgroundWork
	return NewWorker(registry, bus, reporter, logger, cfg, work)
}

// NewForegroundWorker gates the worker on the controller's foreground
// predicate: user-visible work that still must not pile onto a busy
// session.
func NewForegroundWorker(registry *Registry, bus Bus, ctrl Controller, reporter ErrorReporter, logger *zap.SugaredLogger, cfg WorkerConfig, work func() error) *Worker {
	cfg.Admission = ctrl.GoodTimeToStartForegroundWork
	return NewWorker(registry, bus, reporter, logger, cfg, work)
}

// Start runs the worker loop on its own goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop shuts the worker down and waits for the loop to exit.
func (w *Worker) Stop() {
	w.Shutdown()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	defer w.close()

	if err := w.wait(w.cfg.InitWait, true); err != nil {
		return
	}
	for {
		if err := w.CheckShutdown(); err != nil {
			return
		}
		if err := w.wait(w.cfg.PreCallWait, false); err != nil {
			return
		}
		if err := w.awaitAdmission(); err != nil {
			return
		}
		if w.cfg.PreCall != nil {
			w.cfg.PreCall()
		}
		if err := w.invoke(); err != nil {
			return
		}
		if err := w.wait(w.cfg.Period, true); err != nil {
			return
		}
	}
}

// awaitAdmission polls the admission predicate once a second until it
// passes. Not interruptible by Wake.
func (w *Worker) awaitAdmission() error {
	for w.cfg.Admission != nil && !w.cfg.Admission() {
		time.Sleep(admissionPollInterval)
		if err := w.CheckShutdown(); err != nil {
			return err
		}
	}
	return nil
}

// invoke runs one work cycle. Only a shutdown signal propagates; anything
// else is contained so the worker survives to its next period.
func (w *Worker) invoke() error {
	w.setSummary("running work action")
	defer w.setSummary("waiting for next period")

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("worker %s: work action panic: %v", w.name, r)
			}
		}()
		return w.work()
	}()

	if err == nil {
		return nil
	}
	if IsShutdown(err) {
		return err
	}
	w.logger.Errorw("worker cycle failed", "worker", w.name, "error", err)
	if w.reporter != nil {
		w.reporter.ReportError(err)
	}
	return nil
}
