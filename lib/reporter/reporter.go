// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edgerelay/edgerelay/lib/buffer"
)

// DefaultPollWait is how long a cycle services pub/sub pushes.
const DefaultPollWait = time.Second

// Reporter is the background loop tying the buffer, the aggregator
// and the delivery engine together. Only the goroutine running Run
// touches the buffer.
type Reporter struct {
	buffer     buffer.Buffer
	aggregator *Aggregator
	delivery   *Delivery
	pollWait   time.Duration
	logger     *slog.Logger
	metrics    *Metrics

	sleeping atomic.Bool

	cycles        atomic.Uint64
	sent          atomic.Uint64
	failed        atomic.Uint64
	bufferRuns    atomic.Int64
	bufferEntries atomic.Int64
	lastEvicted   uint64
}

// New returns a Reporter. pollWait bounds the pub/sub poll in each
// steady-state cycle.
func New(buf buffer.Buffer, aggregator *Aggregator, delivery *Delivery, pollWait time.Duration, logger *slog.Logger, metrics *Metrics) *Reporter {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	r := &Reporter{
		buffer:     buf,
		aggregator: aggregator,
		delivery:   delivery,
		pollWait:   pollWait,
		logger:     logger,
		metrics:    metrics,
	}
	r.lastEvicted = buf.Evicted()
	r.observeBuffer()
	return r
}

// SetSleeping pauses (true) or resumes (false) sending. While paused
// the loop keeps draining and persisting records.
func (r *Reporter) SetSleeping(sleeping bool) { r.sleeping.Store(sleeping) }

// Sleeping reports whether sending is paused.
func (r *Reporter) Sleeping() bool { return r.sleeping.Load() }

// Stats is a point-in-time view of the loop for status reporting.
type Stats struct {
	Cycles        uint64 `cbor:"cycles"`
	Sent          uint64 `cbor:"sent"`
	Failed        uint64 `cbor:"failed"`
	BufferRuns    int64  `cbor:"buffer_runs"`
	BufferEntries int64  `cbor:"buffer_entries"`
	Sleeping      bool   `cbor:"sleeping"`
}

// Stats may be called from any goroutine.
func (r *Reporter) Stats() Stats {
	return Stats{
		Cycles:        r.cycles.Load(),
		Sent:          r.sent.Load(),
		Failed:        r.failed.Load(),
		BufferRuns:    r.bufferRuns.Load(),
		BufferEntries: r.bufferEntries.Load(),
		Sleeping:      r.sleeping.Load(),
	}
}

// Run connects the transport, runs one priming cycle without polling,
// then cycles until ctx is cancelled. Delivery failures never end the
// loop.
func (r *Reporter) Run(ctx context.Context) error {
	if err := r.delivery.Start(ctx); err != nil {
		r.logger.Warn("initial transport connect failed, will retry", "error", err)
	}
	r.logger.Info("reporter starting",
		"capacity", r.buffer.Capacity(),
		"buffered_runs", r.buffer.RunCount(),
	)

	r.cycle(ctx, false)
	r.logger.Info("reporter listening")

	for ctx.Err() == nil {
		r.cycle(ctx, true)
	}
	return nil
}

// cycle runs one prefetch, poll, aggregate, send, advance pass.
func (r *Reporter) cycle(ctx context.Context, poll bool) {
	defer r.cycles.Add(1)
	defer r.observeBuffer()

	runs := r.buffer.RunCount()
	head, err := r.buffer.Front()
	if err != nil {
		r.logger.Error("buffered batch unreadable, discarding it", "error", err, "runs", runs)
		if err := r.buffer.PopFront(); err != nil {
			r.logger.Error("discarding unreadable batch failed", "error", err)
		}
		runs, head = r.buffer.RunCount(), nil
	}

	if poll {
		r.delivery.Poll(ctx, r.pollWait)
	}

	// Persisting the live batch may evict runs, the head included.
	evictedBefore := r.buffer.Evicted()
	live := r.aggregator.Drain()
	headEvicted := r.buffer.Evicted() > evictedBefore

	payload := head
	if runs <= 1 {
		payload = append(payload, live...)
	} else if len(live) > 0 {
		r.logger.Debug("backlog pending, live batch not sent", "runs", runs, "bytes", len(live))
	}

	if r.sleeping.Load() || len(payload) == 0 {
		return
	}

	if err := r.delivery.Send(ctx, payload); err != nil {
		r.failed.Add(1)
		r.logger.Warn("delivery failed, keeping buffered batch",
			"error", err,
			"runs", r.buffer.RunCount(),
			"bytes", len(payload),
		)
		return
	}
	r.sent.Add(1)

	switch {
	case runs <= 1:
		err = r.buffer.Clear()
	case headEvicted:
		r.logger.Debug("sent batch was evicted while persisting, not popping", "runs", r.buffer.RunCount())
		err = nil
	default:
		err = r.buffer.PopFront()
	}
	if err != nil {
		r.logger.Error("advancing buffer after send failed", "error", err)
	}
}

func (r *Reporter) observeBuffer() {
	runs, entries := r.buffer.RunCount(), r.buffer.EntryCount()
	r.bufferRuns.Store(int64(runs))
	r.bufferEntries.Store(int64(entries))
	r.metrics.BufferRuns.Set(float64(runs))
	r.metrics.BufferEntries.Set(float64(entries))

	if evicted := r.buffer.Evicted(); evicted > r.lastEvicted {
		r.metrics.BufferEvictions.Add(float64(evicted - r.lastEvicted))
		r.lastEvicted = evicted
	}
}
