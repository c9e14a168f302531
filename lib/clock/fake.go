// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a manually driven Clock. It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	channel  chan time.Time
	// period is non-zero for tickers, which rearm after firing.
	period time.Duration
	// active is false once a one-shot has fired or any timer is stopped.
	active bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	return c.NewTimer(d).C
}

func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{channel: make(chan time.Time, 1)}
	c.armLocked(timer, d)

	return &Timer{
		C: timer.channel,
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := timer.active
			c.disarmLocked(timer)
			return was
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			was := timer.active
			c.disarmLocked(timer)
			c.armLocked(timer, d)
			return was
		},
	}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{channel: make(chan time.Time, 1), period: d}
	c.armLocked(timer, d)

	return &Ticker{
		C: timer.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.disarmLocked(timer)
		},
	}
}

// armLocked schedules timer d from now. Non-positive one-shot
// durations fire on the spot without becoming pending.
func (c *FakeClock) armLocked(timer *fakeTimer, d time.Duration) {
	if d <= 0 && timer.period == 0 {
		select {
		case timer.channel <- c.now:
		default:
		}
		return
	}
	timer.deadline = c.now.Add(d)
	timer.active = true
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) disarmLocked(timer *fakeTimer) {
	timer.active = false
	for i, candidate := range c.pending {
		if candidate == timer {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
}

// Advance moves time forward by d, firing every timer whose deadline
// is reached in deadline order. A ticker spanning several periods
// fires once per period; ticks that find C full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for {
		due := c.dueLocked()
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			select {
			case timer.channel <- c.now:
			default:
			}
		}
	}
}

// dueLocked removes expired timers from the pending set (rearming
// tickers) and returns them sorted by deadline.
func (c *FakeClock) dueLocked() []*fakeTimer {
	var due, remaining []*fakeTimer
	for _, timer := range c.pending {
		if timer.deadline.After(c.now) {
			remaining = append(remaining, timer)
			continue
		}
		due = append(due, timer)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })

	for _, timer := range due {
		if timer.period > 0 {
			timer.deadline = timer.deadline.Add(timer.period)
			remaining = append(remaining, timer)
		} else {
			timer.active = false
		}
	}
	c.pending = remaining
	return due
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount reports how many timers and tickers are armed.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
