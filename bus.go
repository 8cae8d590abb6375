// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import "sync"

// Topics broadcast to every daemon-class loop.
const (
	TopicWakeDaemons = "wake_daemons"
	TopicShutdown    = "shutdown"
)

// Bus is the notification fabric the core depends on. The application
// usually brings its own; MemoryBus covers the in-process case.
type Bus interface {
	Publish(topic string, payload any)
	// Subscribe registers fn for a topic and returns an unsubscribe
	// function.
	Subscribe(topic string, fn func(payload any)) (cancel func())
}

// MemoryBus is a mutex-protected in-process Bus. Handlers run on the
// publisher's goroutine and must not block; wake handlers only set events.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[int]func(payload any)
	next int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[string]map[int]func(payload any){}}
}

func (b *MemoryBus) Subscribe(topic string, fn func(payload any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	m, ok := b.subs[topic]
	if !ok {
		m = map[int]func(payload any){}
		b.subs[topic] = m
	}
	m[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

func (b *MemoryBus) Publish(topic string, payload any) {
	b.mu.Lock()
	fns := make([]func(payload any), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
