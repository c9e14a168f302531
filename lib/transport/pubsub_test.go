// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/edgerelay/edgerelay/lib/clock"
	"github.com/edgerelay/edgerelay/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pushed struct {
	topic   string
	payload string
}

func TestPumpDispatchesOnYieldingGoroutine(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	p := newPump(fakeClock, discardLogger())

	var got []pushed
	p.handle("s/dl", func(topic string, payload []byte) {
		got = append(got, pushed{topic, string(payload)})
	})

	p.deliver("s/dl", []byte("510,1"))
	p.deliver("s/unknown", []byte("dropped"))
	p.deliver("s/dl", []byte("511,2"))

	done := make(chan struct{})
	go func() {
		p.run(context.Background(), time.Second)
		close(done)
	}()
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
	testutil.RequireClosed(t, done, 5*time.Second, "pump run")

	if len(got) != 2 || got[0].payload != "510,1" || got[1].payload != "511,2" {
		t.Fatalf("dispatched %+v", got)
	}
}

func TestPumpDropsOldestWhenFull(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	p := newPump(fakeClock, discardLogger())

	var got []string
	p.handle("s/dl", func(_ string, payload []byte) {
		got = append(got, string(payload))
	})

	for i := range pumpDepth + 2 {
		p.deliver("s/dl", []byte(strconv.Itoa(i)))
	}
	if dropped := p.dropped.Load(); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}

	p.drain()
	if len(got) != pumpDepth || got[0] != "2" || got[len(got)-1] != strconv.Itoa(pumpDepth+1) {
		t.Fatalf("dispatched %q, want messages 2 through %d", got, pumpDepth+1)
	}
}

func TestPumpStopsOnContext(t *testing.T) {
	p := newPump(clock.Fake(epoch), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.run(ctx, time.Hour)
		close(done)
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "pump run with cancelled context")
}

func TestMQTTRequiresConnection(t *testing.T) {
	m := NewMQTT(MQTTOptions{Broker: "tcp://127.0.0.1:1", ClientID: "edgerelay-test", Timeout: 2 * time.Second})
	ctx := context.Background()

	if err := m.Publish(ctx, "s/ul", []byte("x"), 2); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish before Connect = %v, want ErrNotConnected", err)
	}
	if err := m.Subscribe(ctx, []string{"s/dl"}, []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Subscribe before Connect = %v, want ErrNotConnected", err)
	}
	if err := m.Yield(ctx, time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Yield before Connect = %v, want ErrNotConnected", err)
	}
	if err := m.Connect(ctx, true); err == nil {
		t.Fatal("Connect to a closed port succeeded")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (f fakeMessage) Duplicate() bool   { return false }
func (f fakeMessage) Qos() byte         { return 1 }
func (f fakeMessage) Retained() bool    { return false }
func (f fakeMessage) Topic() string     { return f.topic }
func (f fakeMessage) MessageID() uint16 { return 1 }
func (f fakeMessage) Payload() []byte   { return f.payload }
func (f fakeMessage) Ack()              {}

func TestMQTTMessagesReachHandlers(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	m := NewMQTT(MQTTOptions{Clock: fakeClock})

	received := make(chan pushed, 1)
	m.Handle("s/ol/xid-1", func(topic string, payload []byte) {
		received <- pushed{topic, string(payload)}
	})

	m.onMessage(nil, fakeMessage{topic: "s/ol/xid-1", payload: []byte("511,op")})
	go m.pump.run(context.Background(), time.Second)

	got := testutil.RequireReceive(t, received, 5*time.Second, "handler call")
	if got.topic != "s/ol/xid-1" || got.payload != "511,op" {
		t.Fatalf("handler got %+v", got)
	}
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(time.Second)
}

func TestRedisPublishAndYield(t *testing.T) {
	server := miniredis.RunT(t)
	fakeClock := clock.Fake(epoch)
	ctx := context.Background()

	r := NewRedis(RedisOptions{Addr: server.Addr(), Timeout: 2 * time.Second, Clock: fakeClock})
	defer r.Close()

	received := make(chan pushed, 4)
	r.Handle("s/dl", func(topic string, payload []byte) {
		received <- pushed{topic, string(payload)}
	})

	if err := r.Yield(ctx, time.Second); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Yield before Subscribe = %v, want ErrNotConnected", err)
	}
	if err := r.Connect(ctx, true); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	topics, qos := DefaultTopics("").Subscriptions("xid-1")
	if err := r.Subscribe(ctx, topics, qos); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Outbound: a separate client watches the uplink topic.
	watcher := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer watcher.Close()
	uplink := watcher.Subscribe(ctx, "s/ul")
	defer uplink.Close()
	if _, err := uplink.Receive(ctx); err != nil {
		t.Fatalf("watcher subscribe: %v", err)
	}
	if err := r.Publish(ctx, "s/ul", []byte("15,A\nx\n"), 2); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msg := testutil.RequireReceive(t, uplink.Channel(), 5*time.Second, "uplink message")
	if msg.Payload != "15,A\nx\n" {
		t.Fatalf("uplink payload = %q", msg.Payload)
	}

	// Inbound: the server pushes on the downlink topic during Yield.
	result := make(chan error, 1)
	go func() { result <- r.Yield(ctx, time.Second) }()
	fakeClock.WaitForTimers(1)
	server.Publish("s/dl", "510,restart")

	got := testutil.RequireReceive(t, received, 5*time.Second, "downlink handler")
	if got.payload != "510,restart" {
		t.Fatalf("downlink payload = %q", got.payload)
	}
	fakeClock.Advance(time.Second)
	if err := testutil.RequireReceive(t, result, 5*time.Second, "Yield result"); err != nil {
		t.Fatalf("Yield: %v", err)
	}
}

func TestRedisConnectFailure(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	r := NewRedis(RedisOptions{Addr: addr, Timeout: time.Second})
	if err := r.Connect(context.Background(), true); err == nil {
		t.Fatal("Connect to a stopped server succeeded")
	}
	if err := r.Publish(context.Background(), "s/ul", []byte("x"), 0); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Publish after failed Connect = %v, want ErrNotConnected", err)
	}
}
