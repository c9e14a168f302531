// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for everything that waits: queue gets,
// backoff sleeps between delivery attempts, and periodic loops.
// Production wiring passes Real(); tests pass Fake() and drive time
// explicitly.
type Clock interface {
	// Now returns the current time. Satisfies backoff.Clock.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a one-shot Timer. Unlike After, the caller can
	// Stop it, which matters for waits that usually end early (a
	// queue get that is satisfied by an arriving item).
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a stoppable one-shot event.
type Timer struct {
	// C receives the fire time. Capacity 1.
	C <-chan time.Time

	stop  func() bool
	reset func(time.Duration) bool
}

// Stop cancels the timer. Reports whether the timer was still pending.
func (t *Timer) Stop() bool { return t.stop() }

// Reset reschedules the timer to fire d from now. Reports whether the
// timer was pending before the call.
func (t *Timer) Reset(d time.Duration) bool { return t.reset(d) }

// Ticker delivers periodic ticks on C (capacity 1; slow readers miss
// ticks rather than queueing them).
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stop() }
