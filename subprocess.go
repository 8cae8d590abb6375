// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
)

// processPollInterval bounds each wait slice on an external process so
// application shutdown is noticed while the child still runs.
const processPollInterval = 10 * time.Second

// WaitProcess waits for a started command to exit, polling in bounded
// slices. If the controller reports shutdown while waiting, the process
// is killed immediately and ErrShutdown returned. Otherwise the child's
// own exit error, if any, is returned.
func WaitProcess(cmd *exec.Cmd, ctrl Controller) error {
	shuttingDown := func() bool {
		return ctrl != nil && (ctrl.DoingFastExit() || ctrl.WorkersShuttingDown())
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	kill := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done // reap
		return errors.Wrap(ErrShutdown, "killed external process")
	}

	if shuttingDown() {
		return kill()
	}

	ticker := time.NewTicker(processPollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C:
			if shuttingDown() {
				return kill()
			}
		}
	}
}
