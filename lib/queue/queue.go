// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package queue provides the bounded multi-producer queue that sits
// between record producers and the reporter (outbound) and between
// transports and the dispatcher (inbound).
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgerelay/edgerelay/lib/clock"
)

// Status is the outcome of a Get.
type Status int

const (
	// StatusOK means an item was returned.
	StatusOK Status = iota
	// StatusTimeout means the wait budget elapsed with the queue empty.
	StatusTimeout
	// StatusClosed means the queue was closed and fully drained.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Queue is a bounded FIFO. Put never blocks: when the queue is full
// the oldest item is discarded to make room, and Dropped counts it.
// Any number of goroutines may Put; Get is meant for one consumer at a
// time but is safe under concurrent use.
type Queue[T any] struct {
	clock    clock.Clock
	capacity int

	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds a token while items are available. Capacity 1 so
	// Put never blocks signalling it.
	ready chan struct{}

	dropped atomic.Uint64
}

// New returns an empty queue holding at most capacity items. A
// non-positive capacity is treated as 1.
func New[T any](capacity int, clk clock.Clock) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		clock:    clk,
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Put appends item. Reports false if the queue is closed. When full,
// the oldest item is dropped first.
func (q *Queue[T]) Put(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if len(q.items) >= q.capacity {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped.Add(1)
	}
	q.items = append(q.items, item)
	q.signalLocked()
	return true
}

// Get removes and returns the oldest item, waiting up to timeout for
// one to arrive. A non-positive timeout polls without waiting.
func (q *Queue[T]) Get(timeout time.Duration) (T, Status) {
	if item, status, ok := q.tryGet(); ok {
		return item, status
	}
	var zero T
	if timeout <= 0 {
		return zero, StatusTimeout
	}

	timer := q.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.ready:
			if item, status, ok := q.tryGet(); ok {
				return item, status
			}
		case <-timer.C:
			if item, status, ok := q.tryGet(); ok {
				return item, status
			}
			return zero, StatusTimeout
		}
	}
}

// tryGet pops the head if there is one. ok is false when the caller
// should keep waiting.
func (q *Queue[T]) tryGet() (item T, status Status, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return item, StatusClosed, true
		}
		return item, StatusTimeout, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) > 0 || q.closed {
		q.signalLocked()
	}
	return item, StatusOK, true
}

func (q *Queue[T]) signalLocked() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Close stops accepting items. Items already queued can still be
// taken; once they are gone Get reports StatusClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signalLocked()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the maximum number of queued items.
func (q *Queue[T]) Capacity() int { return q.capacity }

// Dropped returns how many items were discarded on overflow.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }
