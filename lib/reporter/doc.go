// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter moves records from the outbound queue to the
// collector.
//
// One goroutine runs Reporter.Run. Each cycle it reads the oldest
// buffered batch, polls the pub/sub transport for pushed operations,
// drains the outbound queue through the Aggregator (which mirrors
// persist-flagged records into the buffer), and hands the result to
// the Delivery engine. Live traffic rides along only when the buffer
// holds at most one batch, so backlog always goes out first. The
// buffer advances only after a successful send; a failed cycle is
// simply repeated.
//
// Delivery is at-least-once. A batch whose acknowledgement is lost is
// sent again on the next cycle.
package reporter
