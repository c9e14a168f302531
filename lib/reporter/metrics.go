// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the reporter's Prometheus instruments.
type Metrics struct {
	RecordsAggregated prometheus.Counter
	RecordsPersisted  prometheus.Counter
	PersistFailures   prometheus.Counter

	SendAttempts prometheus.Counter
	PayloadsSent prometheus.Counter
	PayloadBytes prometheus.Counter
	SendFailures prometheus.Counter
	SendDuration prometheus.Histogram

	InboundMessages prometheus.Counter
	Reconnects      prometheus.Counter

	BufferRuns      prometheus.Gauge
	BufferEntries   prometheus.Gauge
	BufferEvictions prometheus.Counter
}

// NewMetrics creates the instruments and registers them with
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "edgerelay", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "edgerelay", Name: name, Help: help})
	}

	m := &Metrics{
		RecordsAggregated: counter("records_aggregated_total", "Records drained from the outbound queue."),
		RecordsPersisted:  counter("records_persisted_total", "Records mirrored into the store-and-forward buffer."),
		PersistFailures:   counter("persist_failures_total", "Aggregates that could not be written to the buffer."),

		SendAttempts: counter("send_attempts_total", "Individual transport attempts, including retries."),
		PayloadsSent: counter("payloads_sent_total", "Payloads the collector accepted."),
		PayloadBytes: counter("payload_bytes_total", "Bytes of accepted payloads."),
		SendFailures: counter("send_failures_total", "Payloads that exhausted their retries."),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "edgerelay",
			Name:      "send_duration_seconds",
			Help:      "Time from first attempt to the final outcome of a send, backoff included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),

		InboundMessages: counter("inbound_messages_total", "Collector messages routed to the inbound queue."),
		Reconnects:      counter("reconnects_total", "Pub/sub reconnect-and-resubscribe cycles."),

		BufferRuns:      gauge("buffer_runs", "Batches held in the store-and-forward buffer."),
		BufferEntries:   gauge("buffer_entries", "Pages or lines held in the store-and-forward buffer."),
		BufferEvictions: counter("buffer_evictions_total", "Buffered data discarded to make room."),
	}

	registerer.MustRegister(
		m.RecordsAggregated, m.RecordsPersisted, m.PersistFailures,
		m.SendAttempts, m.PayloadsSent, m.PayloadBytes, m.SendFailures, m.SendDuration,
		m.InboundMessages, m.Reconnects,
		m.BufferRuns, m.BufferEntries, m.BufferEvictions,
	)
	return m
}
