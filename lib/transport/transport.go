// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries payloads between the agent and its
// collector. Two shapes exist: RequestResponse (HTTP) where a reply
// comes back on the same exchange, and PubSub (MQTT, Redis) where the
// agent publishes to one topic and receives pushes on others.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by PubSub operations that need a live
// connection when there is none.
var ErrNotConnected = errors.New("transport: not connected")

// RequestResponse posts a payload and keeps the reply body until it is
// cleared.
type RequestResponse interface {
	// Post sends payload. A non-2xx reply is an error.
	Post(ctx context.Context, payload []byte) error
	// Response returns the body of the last successful Post.
	Response() []byte
	// ClearResponse discards the stored body.
	ClearResponse()
	SetTimeout(d time.Duration)
}

// Handler receives a pushed message. Handlers run on the goroutine
// that calls Yield.
type Handler func(topic string, payload []byte)

// PubSub is a publish/subscribe connection.
type PubSub interface {
	// Connect (re)establishes the connection, dropping any previous
	// one.
	Connect(ctx context.Context, cleanSession bool) error
	// Subscribe subscribes to topics; qos[i] applies to topics[i].
	Subscribe(ctx context.Context, topics []string, qos []byte) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
	// Yield services pushed messages for timeout, invoking the
	// registered handlers. It fails when the connection is gone.
	Yield(ctx context.Context, timeout time.Duration) error
	// Handle registers the handler for an exact topic. Register
	// before Connect.
	Handle(topic string, handler Handler)

	SetTimeout(d time.Duration)
	SetCredentials(username, password string)
	SetKeepalive(d time.Duration)

	Close() error
}

// Topics is the collector's topic layout.
type Topics struct {
	// Uplink receives the agent's batches.
	Uplink string
	// Downlink carries operations for the device.
	Downlink string
	// Operations carries operations for one session; the session id
	// is appended.
	Operations string
	// Errors carries collector-side error reports.
	Errors string
}

// DefaultTopics returns the standard layout under prefix (which may be
// empty).
func DefaultTopics(prefix string) Topics {
	return Topics{
		Uplink:     prefix + "s/ul",
		Downlink:   prefix + "s/dl",
		Operations: prefix + "s/ol/",
		Errors:     prefix + "s/e",
	}
}

// Subscriptions returns the topics and QoS levels the agent listens
// on for session.
func (t Topics) Subscriptions(session string) ([]string, []byte) {
	return []string{t.Downlink, t.Operations + session, t.Errors}, []byte{1, 1, 0}
}
