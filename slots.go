// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"go.uber.org/zap"
)

// CountingSlotProvider is the in-process SlotProvider: a mutex-protected
// counter per slot type with a configurable cap.
type CountingSlotProvider struct {
	mu         sync.Mutex
	defaultCap int
	caps       map[string]int
	held       map[string]int
}

// NewCountingSlotProvider creates a provider admitting at most defaultCap
// concurrent jobs per slot type. Per-type caps override via SetCap.
func NewCountingSlotProvider(defaultCap int) *CountingSlotProvider {
	return &CountingSlotProvider{
		defaultCap: defaultCap,
		caps:       map[string]int{},
		held:       map[string]int{},
	}
}

func (p *CountingSlotProvider) SetCap(slotType string, n int) {
	p.mu.Lock()
	p.caps[slotType] = n
	p.mu.Unlock()
}

func (p *CountingSlotProvider) capFor(slotType string) int {
	if n, ok := p.caps[slotType]; ok {
		return n
	}
	return p.defaultCap
}

func (p *CountingSlotProvider) AcquireSlot(slotType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held[slotType] >= p.capFor(slotType) {
		return false
	}
	p.held[slotType]++
	return true
}

func (p *CountingSlotProvider) ReleaseSlot(slotType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held[slotType] > 0 {
		p.held[slotType]--
	}
}

// Held reports the permits currently out for a slot type.
func (p *CountingSlotProvider) Held(slotType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held[slotType]
}

// slot key prefix in redis
const prefixSlot = "sched:slot:"

// RedisSlotProvider shares admission slots between processes through redis
// counters. Acquire is INCR-then-check so two racing processes cannot both
// land under the cap; refused acquires are undone with a DECR. A TTL on
// every counter defends against permits leaked by a crashed process.
type RedisSlotProvider struct {
	pool       *redis.Pool
	defaultCap int
	ttl        time.Duration
	logger     *zap.SugaredLogger

	mu   sync.Mutex
	caps map[string]int
}

// NewRedisSlotProvider connects to the given redis URL. Counters expire
// after ttl; pass zero for the 240s default.
func NewRedisSlotProvider(url string, defaultCap int, ttl time.Duration, logger *zap.SugaredLogger) *RedisSlotProvider {
	if ttl <= 0 {
		ttl = 240 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisSlotProvider{
		pool: &redis.Pool{
			MaxIdle:     200,
			IdleTimeout: 240 * time.Second,
			Dial: func() (redis.Conn, error) {
				return redis.DialURL(url)
			},
		},
		defaultCap: defaultCap,
		ttl:        ttl,
		logger:     logger,
		caps:       map[string]int{},
	}
}

func (p *RedisSlotProvider) SetCap(slotType string, n int) {
	p.mu.Lock()
	p.caps[slotType] = n
	p.mu.Unlock()
}

func (p *RedisSlotProvider) capFor(slotType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.caps[slotType]; ok {
		return n
	}
	return p.defaultCap
}

func (p *RedisSlotProvider) AcquireSlot(slotType string) bool {
	conn := p.pool.Get()
	defer conn.Close()

	key := prefixSlot + slotType
	n, err := redis.Int(conn.Do("INCR", key))
	if err != nil {
		// a refused slot only delays the job, so fail closed
		p.logger.Warnw("slot acquire failed", "slot", slotType, "error", err)
		return false
	}
	conn.Do("EXPIRE", key, int(p.ttl.Seconds()))
	if n > p.capFor(slotType) {
		conn.Do("DECR", key)
		return false
	}
	return true
}

func (p *RedisSlotProvider) ReleaseSlot(slotType string) {
	conn := p.pool.Get()
	defer conn.Close()

	key := prefixSlot + slotType
	n, err := redis.Int(conn.Do("DECR", key))
	if err != nil {
		p.logger.Warnw("slot release failed", "slot", slotType, "error", err)
		return
	}
	if n < 0 {
		conn.Do("SET", key, 0, "EX", int(p.ttl.Seconds()))
	}
}

func (p *RedisSlotProvider) Close() error {
	return p.pool.Close()
}
