// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import "sync/atomic"

// Session holds the agent's current session id. Producers, the
// aggregator and the pub/sub subscription all read it; the dispatcher
// changes it when the collector starts a new exchange.
type Session struct {
	id atomic.Pointer[string]
}

// NewSession returns a Session holding id.
func NewSession(id string) *Session {
	s := &Session{}
	s.Set(id)
	return s
}

func (s *Session) Get() string { return *s.id.Load() }

func (s *Session) Set(id string) { s.id.Store(&id) }
