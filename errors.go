// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import "github.com/cockroachdb/errors"

// ErrShutdown is the cooperative shutdown signal. It is expected control
// flow, not a defect: a loop that observes it exits cleanly and nothing
// logs it as an error.
var ErrShutdown = errors.New("sched: shutting down")

// IsShutdown reports whether err carries the cooperative shutdown signal.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}
