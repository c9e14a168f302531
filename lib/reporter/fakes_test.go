// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgerelay/edgerelay/lib/buffer"
	"github.com/edgerelay/edgerelay/lib/clock"
	"github.com/edgerelay/edgerelay/lib/queue"
	"github.com/edgerelay/edgerelay/lib/transport"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// fakeHTTP fails its first len(errs) posts with the listed errors.
type fakeHTTP struct {
	mu       sync.Mutex
	errs     []error
	posts    []string
	reply    string
	response []byte
}

func (f *fakeHTTP) Post(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, string(payload))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	if f.reply != "" {
		f.response = []byte(f.reply)
	}
	return nil
}

func (f *fakeHTTP) Response() []byte         { return f.response }
func (f *fakeHTTP) ClearResponse()           { f.response = nil }
func (f *fakeHTTP) SetTimeout(time.Duration) {}

func (f *fakeHTTP) postCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posts)
}

func (f *fakeHTTP) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posts...)
}

type publication struct {
	topic   string
	payload string
	qos     byte
}

// fakePubSub records calls. Pushes queued with push are dispatched on
// the next Yield.
type fakePubSub struct {
	mu          sync.Mutex
	handlers    map[string]transport.Handler
	connects    int
	clean       []bool
	subscribed  [][]string
	published   []publication
	publishErrs []error
	yieldErr    error
	pushes      []publication
	onYield     func()
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: make(map[string]transport.Handler)}
}

func (f *fakePubSub) Connect(_ context.Context, cleanSession bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.clean = append(f.clean, cleanSession)
	return nil
}

func (f *fakePubSub) Subscribe(_ context.Context, topics []string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, topics)
	return nil
}

func (f *fakePubSub) Publish(_ context.Context, topic string, payload []byte, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publication{topic, string(payload), qos})
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		return err
	}
	return nil
}

func (f *fakePubSub) Yield(context.Context, time.Duration) error {
	f.mu.Lock()
	pushes := f.pushes
	f.pushes = nil
	err := f.yieldErr
	f.yieldErr = nil
	onYield := f.onYield
	f.mu.Unlock()

	for _, p := range pushes {
		f.mu.Lock()
		handler := f.handlers[p.topic]
		f.mu.Unlock()
		if handler != nil {
			handler(p.topic, []byte(p.payload))
		}
	}
	if onYield != nil {
		onYield()
	}
	return err
}

func (f *fakePubSub) Handle(topic string, handler transport.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
}

func (f *fakePubSub) push(topic, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, publication{topic: topic, payload: payload})
}

func (f *fakePubSub) SetTimeout(time.Duration)      {}
func (f *fakePubSub) SetCredentials(string, string) {}
func (f *fakePubSub) SetKeepalive(time.Duration)    {}
func (f *fakePubSub) Close() error                  { return nil }

// fakeBuffer keeps every EmplaceBack as its own run so tests control
// the run count exactly.
type fakeBuffer struct {
	runs [][]byte
}

var _ buffer.Buffer = (*fakeBuffer)(nil)

func (f *fakeBuffer) Capacity() int   { return 100 }
func (f *fakeBuffer) SetCapacity(int) {}
func (f *fakeBuffer) IsEmpty() bool   { return len(f.runs) == 0 }
func (f *fakeBuffer) RunCount() int   { return len(f.runs) }
func (f *fakeBuffer) EntryCount() int { return len(f.runs) }
func (f *fakeBuffer) Evicted() uint64 { return 0 }
func (f *fakeBuffer) Clear() error {
	f.runs = nil
	return nil
}

func (f *fakeBuffer) Front() ([]byte, error) {
	if len(f.runs) == 0 {
		return nil, nil
	}
	return append([]byte(nil), f.runs[0]...), nil
}

func (f *fakeBuffer) PopFront() error {
	if len(f.runs) > 0 {
		f.runs = f.runs[1:]
	}
	return nil
}

func (f *fakeBuffer) EmplaceBack(data []byte) error {
	f.runs = append(f.runs, append([]byte(nil), data...))
	return nil
}

func (f *fakeBuffer) contents() []string {
	var runs []string
	for _, run := range f.runs {
		runs = append(runs, string(run))
	}
	return runs
}

// rig is a reporter wired to fakes with a non-blocking drain.
type rig struct {
	clock    *clock.FakeClock
	outbound *queue.Queue[Record]
	inbound  *queue.Queue[string]
	session  *Session
	buffer   buffer.Buffer
	metrics  *Metrics
	reporter *Reporter
}

func newRig(t *testing.T, buf buffer.Buffer, delivery func(r *rig) *Delivery) *rig {
	t.Helper()
	r := &rig{
		clock:   clock.Fake(epoch),
		session: NewSession("A"),
		buffer:  buf,
		metrics: newTestMetrics(),
	}
	r.outbound = queue.New[Record](64, r.clock)
	r.inbound = queue.New[string](64, r.clock)
	aggregator := NewAggregator(r.outbound, buf, r.session, 0, 0, discardLogger(), r.metrics)
	r.reporter = New(buf, aggregator, delivery(r), time.Second, discardLogger(), r.metrics)
	return r
}

func (r *rig) options() DeliveryOptions {
	return DeliveryOptions{Retries: 3, Clock: r.clock, Logger: discardLogger(), Metrics: r.metrics}
}
