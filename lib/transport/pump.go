// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgerelay/edgerelay/lib/clock"
)

// pumpDepth is how many pushed messages may wait for the next Yield.
// Past that the oldest waiting message is dropped.
const pumpDepth = 256

type message struct {
	topic   string
	payload []byte
}

// pump moves messages from a client library's goroutines onto the
// goroutine calling Yield, so handlers never run concurrently with
// the reporter.
type pump struct {
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler

	messages chan message
	dropped  atomic.Uint64
}

func newPump(clk clock.Clock, logger *slog.Logger) *pump {
	return &pump{
		clock:    clk,
		logger:   logger,
		handlers: make(map[string]Handler),
		messages: make(chan message, pumpDepth),
	}
}

func (p *pump) handle(topic string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = handler
}

// deliver queues a pushed message without blocking. It runs on the
// client library's router goroutine, which also carries publish acks.
func (p *pump) deliver(topic string, payload []byte) {
	m := message{topic: topic, payload: append([]byte(nil), payload...)}
	for {
		select {
		case p.messages <- m:
			return
		default:
		}
		select {
		case old := <-p.messages:
			p.dropped.Add(1)
			p.logger.Warn("pushed message queue full, dropped oldest",
				"topic", old.topic,
				"bytes", len(old.payload),
				"dropped", p.dropped.Load(),
			)
		default:
		}
	}
}

// run dispatches queued and arriving messages until timeout elapses
// or ctx is done.
func (p *pump) run(ctx context.Context, timeout time.Duration) {
	timer := p.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case m := <-p.messages:
			p.dispatch(m)
		case <-timer.C:
			p.drain()
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain dispatches whatever is already queued without waiting.
func (p *pump) drain() {
	for {
		select {
		case m := <-p.messages:
			p.dispatch(m)
		default:
			return
		}
	}
}

func (p *pump) dispatch(m message) {
	p.mu.Lock()
	handler := p.handlers[m.topic]
	p.mu.Unlock()

	if handler == nil {
		p.logger.Debug("no handler for pushed message", "topic", m.topic, "bytes", len(m.payload))
		return
	}
	handler(m.topic, m.payload)
}
