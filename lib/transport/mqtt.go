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

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgerelay/edgerelay/lib/clock"
)

// MQTTOptions configures an MQTT transport.
type MQTTOptions struct {
	// Broker is the broker URL, e.g. tcp://host:1883 or ssl://host:8883.
	Broker   string
	ClientID string

	Username string
	Password string

	Timeout   time.Duration
	Keepalive time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// MQTT is the PubSub transport over an MQTT broker. The client never
// reconnects on its own; the delivery engine decides when to
// reconnect.
type MQTT struct {
	broker   string
	clientID string
	logger   *slog.Logger
	pump     *pump

	mu        sync.Mutex
	username  string
	password  string
	timeout   time.Duration
	keepalive time.Duration
	client    mqtt.Client
}

var _ PubSub = (*MQTT)(nil)

// NewMQTT returns an unconnected MQTT transport.
func NewMQTT(options MQTTOptions) *MQTT {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &MQTT{
		broker:    options.Broker,
		clientID:  options.ClientID,
		logger:    logger,
		pump:      newPump(clk, logger),
		username:  options.Username,
		password:  options.Password,
		timeout:   options.Timeout,
		keepalive: options.Keepalive,
	}
}

func (m *MQTT) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

func (m *MQTT) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

func (m *MQTT) SetKeepalive(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keepalive = d
}

func (m *MQTT) Handle(topic string, handler Handler) {
	m.pump.handle(topic, handler)
}

// Connect drops any existing connection and dials the broker.
func (m *MQTT) Connect(ctx context.Context, cleanSession bool) error {
	m.mu.Lock()
	if m.client != nil {
		m.client.Disconnect(0)
		m.client = nil
	}
	options := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID).
		SetCleanSession(cleanSession).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetOrderMatters(true).
		SetConnectTimeout(m.timeout).
		SetWriteTimeout(m.timeout).
		SetKeepAlive(m.keepalive).
		SetDefaultPublishHandler(m.onMessage).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("mqtt connection lost", "broker", m.broker, "error", err)
		})
	if m.username != "" {
		options.SetUsername(m.username)
	}
	if m.password != "" {
		options.SetPassword(m.password)
	}
	timeout := m.timeout
	client := mqtt.NewClient(options)
	m.mu.Unlock()

	if err := waitToken(ctx, client.Connect(), timeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", m.broker, err)
	}

	m.mu.Lock()
	m.client = client
	m.mu.Unlock()
	return nil
}

func (m *MQTT) Subscribe(ctx context.Context, topics []string, qos []byte) error {
	client, timeout, err := m.connected()
	if err != nil {
		return err
	}
	if len(topics) != len(qos) {
		return fmt.Errorf("subscribe: %d topics but %d qos levels", len(topics), len(qos))
	}
	filters := make(map[string]byte, len(topics))
	for i, topic := range topics {
		filters[topic] = qos[i]
	}
	if err := waitToken(ctx, client.SubscribeMultiple(filters, m.onMessage), timeout); err != nil {
		return fmt.Errorf("subscribing to %v: %w", topics, err)
	}
	return nil
}

func (m *MQTT) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	client, timeout, err := m.connected()
	if err != nil {
		return err
	}
	if err := waitToken(ctx, client.Publish(topic, qos, false, payload), timeout); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Yield dispatches pushed messages for timeout. It reports
// ErrNotConnected if the connection is down before or after the wait.
func (m *MQTT) Yield(ctx context.Context, timeout time.Duration) error {
	if _, _, err := m.connected(); err != nil {
		return err
	}
	m.pump.run(ctx, timeout)
	_, _, err := m.connected()
	return err
}

func (m *MQTT) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.pump.deliver(msg.Topic(), msg.Payload())
}

func (m *MQTT) connected() (mqtt.Client, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil || !m.client.IsConnectionOpen() {
		return nil, 0, ErrNotConnected
	}
	return m.client, m.timeout, nil
}

// waitToken waits for a paho token, bounded by timeout (when positive)
// and ctx.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-token.Done():
		return token.Error()
	case <-expired:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
