// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryBusDelivers(t *testing.T) {
	bus := NewMemoryBus()
	var got []any
	bus.Subscribe("files.imported", func(payload any) { got = append(got, payload) })

	bus.Publish("files.imported", 42)
	bus.Publish("unrelated", "x")

	assert.Equal(t, []any{42}, got)
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	n := 0
	bus.Subscribe("tick", func(any) { n++ })
	bus.Subscribe("tick", func(any) { n++ })

	bus.Publish("tick", nil)
	assert.Equal(t, 2, n)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	bus := NewMemoryBus()
	n := 0
	cancel := bus.Subscribe("tick", func(any) { n++ })

	bus.Publish("tick", nil)
	cancel()
	bus.Publish("tick", nil)

	assert.Equal(t, 1, n)
}
