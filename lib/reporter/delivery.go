// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edgerelay/edgerelay/lib/clock"
	"github.com/edgerelay/edgerelay/lib/queue"
	"github.com/edgerelay/edgerelay/lib/transport"
)

const (
	// DefaultRetries is the number of attempts per Send.
	DefaultRetries = 3

	// DefaultInitialBackoff is the wait after the first failed
	// attempt; it doubles after each further failure.
	DefaultInitialBackoff = time.Second

	// uplinkQoS asks the broker for exactly-once hand-off of batches.
	uplinkQoS = 2
)

// DeliveryOptions configures a Delivery.
type DeliveryOptions struct {
	// Retries is the total number of attempts per Send (minimum 1).
	Retries        int
	InitialBackoff time.Duration

	// Topics is the pub/sub topic layout. Ignored for HTTP.
	Topics transport.Topics
	// Encoding compresses pub/sub payloads. HTTP transports encode
	// their own bodies.
	Encoding transport.Encoding

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *Metrics
}

// Delivery sends payloads over exactly one transport, retrying with
// exponential backoff, and routes collector-initiated data into the
// inbound queue.
type Delivery struct {
	http    transport.RequestResponse
	pubsub  transport.PubSub
	inbound *queue.Queue[string]
	session *Session

	retries        int
	initialBackoff time.Duration
	topics         transport.Topics
	encoding       transport.Encoding

	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	// subscribedSession is the session whose operations topic has a
	// handler registered.
	subscribedSession string
}

// NewHTTPDelivery returns a Delivery over a request/response transport.
// Non-empty replies are routed into inbound.
func NewHTTPDelivery(t transport.RequestResponse, inbound *queue.Queue[string], options DeliveryOptions) *Delivery {
	d := newDelivery(inbound, nil, options)
	d.http = t
	return d
}

// NewPubSubDelivery returns a Delivery over a publish/subscribe
// transport. Messages on the downlink and session operations topics
// are routed into inbound; messages on the errors topic are logged.
func NewPubSubDelivery(t transport.PubSub, inbound *queue.Queue[string], session *Session, options DeliveryOptions) *Delivery {
	d := newDelivery(inbound, session, options)
	d.pubsub = t
	t.Handle(d.topics.Downlink, d.routeInbound)
	t.Handle(d.topics.Errors, func(topic string, payload []byte) {
		d.logger.Warn("collector reported an error", "topic", topic, "message", string(payload))
	})
	return d
}

func newDelivery(inbound *queue.Queue[string], session *Session, options DeliveryOptions) *Delivery {
	retries := options.Retries
	if retries < 1 {
		retries = DefaultRetries
	}
	initial := options.InitialBackoff
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	topics := options.Topics
	if topics.Uplink == "" {
		topics = transport.DefaultTopics("")
	}
	encoding := options.Encoding
	if encoding == "" {
		encoding = transport.EncodingNone
	}
	return &Delivery{
		inbound:        inbound,
		session:        session,
		retries:        retries,
		initialBackoff: initial,
		topics:         topics,
		encoding:       encoding,
		clock:          options.Clock,
		logger:         options.Logger,
		metrics:        options.Metrics,
	}
}

// Start connects and subscribes a pub/sub transport. HTTP needs no
// setup.
func (d *Delivery) Start(ctx context.Context) error {
	if d.pubsub == nil {
		return nil
	}
	return d.Reconnect(ctx)
}

// Reconnect re-establishes the pub/sub connection and subscribes to
// the downlink, the current session's operations and the errors topic.
// The broker session is resumed, not cleaned, so operations queued
// while the device was offline are still delivered.
func (d *Delivery) Reconnect(ctx context.Context) error {
	if d.pubsub == nil {
		return nil
	}
	d.metrics.Reconnects.Inc()

	if err := d.pubsub.Connect(ctx, false); err != nil {
		return err
	}
	return d.subscribe(ctx)
}

// subscribe registers the current session's operations handler and
// subscribes to the full topic set.
func (d *Delivery) subscribe(ctx context.Context) error {
	session := d.session.Get()
	if session != d.subscribedSession {
		d.pubsub.Handle(d.topics.Operations+session, d.routeInbound)
		d.subscribedSession = session
	}
	topics, qos := d.topics.Subscriptions(session)
	return d.pubsub.Subscribe(ctx, topics, qos)
}

// Poll services pushed messages for up to wait. A session change since
// the last subscribe is picked up first. A failed poll forces a
// reconnect. HTTP has nothing to poll.
func (d *Delivery) Poll(ctx context.Context, wait time.Duration) {
	if d.pubsub == nil {
		return
	}
	if d.session.Get() != d.subscribedSession {
		if err := d.subscribe(ctx); err != nil {
			d.logger.Warn("subscribing to new session failed, reconnecting", "error", err)
			if err := d.Reconnect(ctx); err != nil {
				d.logger.Warn("reconnect failed", "error", err)
			}
		}
	}
	if err := d.pubsub.Yield(ctx, wait); err != nil {
		d.logger.Warn("transport poll failed, reconnecting", "error", err)
		if err := d.Reconnect(ctx); err != nil {
			d.logger.Warn("reconnect failed", "error", err)
		}
	}
}

// Send delivers payload, retrying failed attempts after 1x, 2x, 4x...
// the initial backoff. It returns the last attempt's error once the
// attempts are used up, or the context's error if ctx ends first.
func (d *Delivery) Send(ctx context.Context, payload []byte) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.initialBackoff
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = time.Duration(math.MaxInt64)
	policy.MaxElapsedTime = 0
	policy.Clock = d.clock

	schedule := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(d.retries-1)), ctx)

	start := d.clock.Now()
	attempt := 0
	err := backoff.RetryNotifyWithTimer(
		func() error {
			attempt++
			d.metrics.SendAttempts.Inc()
			return d.attempt(ctx, payload)
		},
		schedule,
		func(err error, wait time.Duration) {
			d.logger.Warn("batch send failed, will retry",
				"error", err,
				"attempt", attempt,
				"backoff", wait,
				"bytes", len(payload),
			)
		},
		&clockTimer{clock: d.clock},
	)
	d.metrics.SendDuration.Observe(d.clock.Now().Sub(start).Seconds())

	if err != nil {
		d.metrics.SendFailures.Inc()
		return fmt.Errorf("send failed after %d attempts: %w", attempt, err)
	}
	d.metrics.PayloadsSent.Inc()
	d.metrics.PayloadBytes.Add(float64(len(payload)))
	return nil
}

func (d *Delivery) attempt(ctx context.Context, payload []byte) error {
	if d.http != nil {
		if err := d.http.Post(ctx, payload); err != nil {
			return err
		}
		if reply := d.http.Response(); len(reply) > 0 {
			d.routeInbound("", reply)
			d.http.ClearResponse()
		}
		return nil
	}

	body, err := d.encoding.Encode(payload)
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := d.pubsub.Publish(ctx, d.topics.Uplink, body, uplinkQoS); err != nil {
		if ctx.Err() == nil {
			if reconnectErr := d.Reconnect(ctx); reconnectErr != nil {
				err = errors.Join(err, fmt.Errorf("reconnect: %w", reconnectErr))
			}
		}
		return err
	}
	return nil
}

func (d *Delivery) routeInbound(_ string, payload []byte) {
	d.metrics.InboundMessages.Inc()
	d.inbound.Put(string(payload))
}

// clockTimer runs backoff waits on the injected clock.
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
