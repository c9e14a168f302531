// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgerelay/edgerelay/lib/codec"
	"github.com/edgerelay/edgerelay/lib/queue"
	"github.com/edgerelay/edgerelay/lib/reporter"
	"github.com/edgerelay/edgerelay/lib/service"
	"github.com/edgerelay/edgerelay/lib/version"
)

// maxReceiveWait caps how long a receive request may block.
const maxReceiveWait = 30 * time.Second

type submitRecord struct {
	Data         string `cbor:"data"`
	Persist      bool   `cbor:"persist"`
	CrossSession bool   `cbor:"cross_session"`
}

type submitRequest struct {
	Records []submitRecord `cbor:"records"`
}

type submitResponse struct {
	Accepted int    `cbor:"accepted"`
	Dropped  uint64 `cbor:"dropped"`
}

type receiveRequest struct {
	TimeoutMilliseconds int64 `cbor:"timeout_ms"`
	Max                 int   `cbor:"max"`
}

type receiveResponse struct {
	Messages []string `cbor:"messages"`
}

type statusResponse struct {
	Version         version.Build  `cbor:"version"`
	UptimeSeconds   float64        `cbor:"uptime_seconds"`
	Session         string         `cbor:"session"`
	Transport       string         `cbor:"transport"`
	OutboundQueued  int            `cbor:"outbound_queued"`
	OutboundDropped uint64         `cbor:"outbound_dropped"`
	InboundQueued   int            `cbor:"inbound_queued"`
	InboundDropped  uint64         `cbor:"inbound_dropped"`
	BufferCapacity  int            `cbor:"buffer_capacity"`
	Reporter        reporter.Stats `cbor:"reporter"`
}

type sleepRequest struct {
	Sleeping bool `cbor:"sleeping"`
}

type sessionRequest struct {
	ID string `cbor:"id"`
}

type sessionResponse struct {
	Previous string `cbor:"previous"`
}

func (a *agent) registerActions(server *service.SocketServer) {
	server.Handle("submit", a.handleSubmit)
	server.Handle("receive", a.handleReceive)
	server.Handle("status", a.handleStatus)
	server.Handle("sleep", a.handleSleep)
	server.Handle("session", a.handleSession)
}

// handleSubmit queues records for the reporter. Records may not
// contain newlines: each one is a single line on the wire.
func (a *agent) handleSubmit(_ context.Context, raw []byte) (any, error) {
	var request submitRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid submit request: %w", err)
	}
	if len(request.Records) == 0 {
		return nil, errors.New("submit request has no records")
	}
	for i, record := range request.Records {
		if record.Data == "" {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		if strings.ContainsAny(record.Data, "\r\n") {
			return nil, fmt.Errorf("record %d contains a line break", i)
		}
	}

	accepted := 0
	for _, record := range request.Records {
		if !a.outbound.Put(reporter.Record{
			Data:         record.Data,
			Persist:      record.Persist,
			CrossSession: record.CrossSession,
		}) {
			return nil, errors.New("agent is shutting down")
		}
		accepted++
	}
	return &submitResponse{Accepted: accepted, Dropped: a.outbound.Dropped()}, nil
}

// handleReceive waits up to timeout_ms for the first inbound message,
// then takes whatever else is already queued, up to max.
func (a *agent) handleReceive(_ context.Context, raw []byte) (any, error) {
	var request receiveRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid receive request: %w", err)
	}
	wait := min(time.Duration(request.TimeoutMilliseconds)*time.Millisecond, maxReceiveWait)
	limit := request.Max
	if limit <= 0 {
		limit = a.inbound.Capacity()
	}

	response := &receiveResponse{Messages: []string{}}
	for len(response.Messages) < limit {
		message, status := a.inbound.Get(wait)
		if status != queue.StatusOK {
			break
		}
		response.Messages = append(response.Messages, message)
		wait = 0
	}
	return response, nil
}

func (a *agent) handleStatus(_ context.Context, _ []byte) (any, error) {
	return &statusResponse{
		Version:         version.Current(),
		UptimeSeconds:   a.clock.Now().Sub(a.started).Seconds(),
		Session:         a.session.Get(),
		Transport:       a.config.Transport,
		OutboundQueued:  a.outbound.Len(),
		OutboundDropped: a.outbound.Dropped(),
		InboundQueued:   a.inbound.Len(),
		InboundDropped:  a.inbound.Dropped(),
		BufferCapacity:  a.config.BufferCapacity(),
		Reporter:        a.reporter.Stats(),
	}, nil
}

func (a *agent) handleSleep(_ context.Context, raw []byte) (any, error) {
	var request sleepRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid sleep request: %w", err)
	}
	a.reporter.SetSleeping(request.Sleeping)
	a.logger.Info("sending paused state changed", "sleeping", request.Sleeping)
	return nil, nil
}

// handleSession switches the session stamped on records that do not
// carry their own. Session ids end up inside markers, so they may not
// contain commas or line breaks. A pub/sub transport subscribes to the
// new session's operations topic on the reporter's next poll.
func (a *agent) handleSession(_ context.Context, raw []byte) (any, error) {
	var request sessionRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid session request: %w", err)
	}
	if request.ID == "" || strings.ContainsAny(request.ID, ",\r\n") {
		return nil, fmt.Errorf("invalid session id %q", request.ID)
	}
	previous := a.session.Get()
	a.session.Set(request.ID)
	a.logger.Info("session changed", "previous", previous, "session", request.ID)
	return &sessionResponse{Previous: previous}, nil
}
