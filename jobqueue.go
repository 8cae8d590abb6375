// Copyright 2026 The threadwell authors. All rights reserved.
// Use of this source code is governed by a MIT
// license that can be found in the LICENSE file.

package sched

import (
	"container/heap"
	"sync"
	"time"
)

// jobQueue is a binary min-heap of jobs ordered by due time, with a
// lookup table by job ID so duplicate insertion is cheap to refuse.
//
//            Time Complexity
//   Len()         O(1)
//   Push()        O(log(n)) amortized
//   Pop()         O(log(n)) amortized
//   Peek()        O(1)
//   Rebuild()     O(n)
//
// Due times mutate out from under the heap (Wake, slot-refusal delays);
// the scheduler restores order lazily with Rebuild rather than on every
// mutation.
type jobQueue struct {
	mu     sync.Mutex
	heap   jobHeap
	lookup map[string]*jobItem
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		lookup: map[string]*jobItem{},
	}
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Push inserts a job in heap position. Reports false if the job is
// already queued.
func (q *jobQueue) Push(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.lookup[j.ID()]; ok {
		return false
	}
	it := &jobItem{job: j, priority: j.NextWorkTime()}
	heap.Push(&q.heap, it)
	q.lookup[j.ID()] = it
	return true
}

// Pop removes and returns the earliest-due job, or nil when empty.
func (q *jobQueue) Pop() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	it := heap.Pop(&q.heap).(*jobItem)
	delete(q.lookup, it.job.ID())
	return it.job
}

// Peek returns the earliest-due job without removing it.
func (q *jobQueue) Peek() Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0].job
}

// Rebuild re-reads every job's due time and restores heap order.
func (q *jobQueue) Rebuild() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, it := range q.heap {
		it.priority = it.job.NextWorkTime()
	}
	heap.Init(&q.heap)
}

// FilterCancelled drops every cancelled job and reports how many went.
func (q *jobQueue) FilterCancelled() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var kept jobHeap
	removed := 0
	for _, it := range q.heap {
		if it.job.IsCancelled() {
			delete(q.lookup, it.job.ID())
			removed++
			continue
		}
		kept = append(kept, it)
	}
	if removed == 0 {
		return 0
	}
	for i, it := range kept {
		it.index = i
	}
	q.heap = kept
	heap.Init(&q.heap)
	return removed
}

// Summaries lists the pending jobs' diagnostic lines, heap order.
func (q *jobQueue) Summaries() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines := make([]string, 0, len(q.heap))
	for _, it := range q.heap {
		lines = append(lines, it.job.Summary())
	}
	return lines
}

type jobItem struct {
	job Job

	// index is maintained by the heap.Interface methods.
	index    int
	priority time.Time
}

type jobHeap []*jobItem

func (h jobHeap) Len() int {
	return len(h)
}

func (h jobHeap) Less(i, j int) bool {
	return h[i].priority.Before(h[j].priority)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	it := x.(*jobItem)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[0 : n-1]
	return it
}
