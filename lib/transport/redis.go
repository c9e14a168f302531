// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgerelay/edgerelay/lib/clock"
)

// RedisOptions configures a Redis transport.
type RedisOptions struct {
	// Addr is host:port of the Redis server.
	Addr     string
	Username string
	Password string
	DB       int

	Timeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Redis is the PubSub transport over Redis PUBLISH/SUBSCRIBE, for
// sites that front their collector with a Redis relay instead of an
// MQTT broker. Redis has no QoS or sessions: qos arguments and
// cleanSession are ignored.
type Redis struct {
	addr   string
	db     int
	logger *slog.Logger
	pump   *pump

	mu           sync.Mutex
	username     string
	password     string
	timeout      time.Duration
	client       *redis.Client
	subscription *redis.PubSub
	// forwarding is closed when the subscription's message channel
	// ends.
	forwarding chan struct{}
}

var _ PubSub = (*Redis)(nil)

// NewRedis returns an unconnected Redis transport.
func NewRedis(options RedisOptions) *Redis {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Redis{
		addr:     options.Addr,
		db:       options.DB,
		logger:   logger,
		pump:     newPump(clk, logger),
		username: options.Username,
		password: options.Password,
		timeout:  options.Timeout,
	}
}

func (r *Redis) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

func (r *Redis) SetCredentials(username, password string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.username = username
	r.password = password
}

// SetKeepalive is a no-op: go-redis health-checks its own pool.
func (r *Redis) SetKeepalive(time.Duration) {}

func (r *Redis) Handle(topic string, handler Handler) {
	r.pump.handle(topic, handler)
}

// Connect replaces the client and verifies the server answers PING.
func (r *Redis) Connect(ctx context.Context, _ bool) error {
	r.mu.Lock()
	r.closeLocked()
	client := redis.NewClient(&redis.Options{
		Addr:         r.addr,
		Username:     r.username,
		Password:     r.password,
		DB:           r.db,
		DialTimeout:  r.timeout,
		ReadTimeout:  r.timeout,
		WriteTimeout: r.timeout,
	})
	r.mu.Unlock()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connecting to redis %s: %w", r.addr, err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, topics []string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return ErrNotConnected
	}
	if r.subscription != nil {
		r.subscription.Close()
		r.subscription = nil
	}

	subscription := r.client.Subscribe(ctx, topics...)
	if _, err := subscription.Receive(ctx); err != nil {
		subscription.Close()
		return fmt.Errorf("subscribing to %v: %w", topics, err)
	}

	forwarding := make(chan struct{})
	go func() {
		defer close(forwarding)
		for msg := range subscription.Channel() {
			r.pump.deliver(msg.Channel, []byte(msg.Payload))
		}
	}()
	r.subscription = subscription
	r.forwarding = forwarding
	return nil
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte, _ byte) error {
	r.mu.Lock()
	client := r.client
	r.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}
	if err := client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Yield dispatches pushed messages for timeout. It reports
// ErrNotConnected when there is no subscription or its message stream
// has ended.
func (r *Redis) Yield(ctx context.Context, timeout time.Duration) error {
	if err := r.subscribed(); err != nil {
		return err
	}
	r.pump.run(ctx, timeout)
	return r.subscribed()
}

func (r *Redis) subscribed() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil || r.subscription == nil {
		return ErrNotConnected
	}
	select {
	case <-r.forwarding:
		return ErrNotConnected
	default:
		return nil
	}
}

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}

func (r *Redis) closeLocked() {
	if r.subscription != nil {
		r.subscription.Close()
		r.subscription = nil
	}
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}
