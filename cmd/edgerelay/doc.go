// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Edgerelay is the store-and-forward telemetry agent. Local producers
// submit records over a Unix socket; the reporter batches them by
// session, mirrors persist-flagged records into the disk or memory
// buffer, and delivers batches to the collector over HTTP, MQTT or
// Redis, retrying with exponential backoff. Collector-initiated
// messages are queued for producers to fetch with the receive action.
//
// Usage:
//
//	edgerelay --config /etc/edgerelay/edgerelay.yaml
//
// Socket actions (CBOR, one request per connection):
//
//	submit   {records: [{data, persist, cross_session}]}
//	receive  {timeout_ms, max} -> {messages}
//	status   -> queue depths, reporter counters, build version
//	sleep    {sleeping}
//	session  {id} -> {previous}
//
// Prometheus metrics are served on metrics.listen at /metrics when it
// is set.
package main
