// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used by the queue, the
// delivery backoff and the agent's periodic loops.
//
// Components hold a Clock field instead of calling the time package.
// Production code passes Real(). Tests pass Fake(), whose time only
// moves on Advance:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go deliverer.Send(ctx, payload)
//	c.WaitForTimers(1)      // the first backoff timer is armed
//	c.Advance(time.Second)  // and now it fires
//
// WaitForTimers closes the window between a goroutine arming a timer
// and the test advancing past it.
package clock
