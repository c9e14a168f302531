// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/edgerelay/edgerelay/lib/buffer"
	"github.com/edgerelay/edgerelay/lib/queue"
)

// Record is one outbound line, without its trailing newline.
type Record struct {
	Data string

	// Persist mirrors the record into the buffer so it survives a
	// failed send or a restart.
	Persist bool

	// CrossSession means Data starts with "<session>," naming the
	// session the record belongs to, instead of the agent's current
	// one. The prefix is stripped before sending.
	CrossSession bool
}

// Aggregator turns queued records into newline-delimited batches,
// writing a marker line whenever the session changes.
type Aggregator struct {
	queue      *queue.Queue[Record]
	buffer     buffer.Buffer
	session    *Session
	wait       time.Duration
	maxRecords int
	logger     *slog.Logger
	metrics    *Metrics
}

// NewAggregator returns an Aggregator draining q into batches and
// persisting into buf. Each queue read waits up to wait; a drain stops
// at the first read that times out or after maxRecords records
// (unlimited when maxRecords <= 0).
func NewAggregator(q *queue.Queue[Record], buf buffer.Buffer, session *Session, wait time.Duration, maxRecords int, logger *slog.Logger, metrics *Metrics) *Aggregator {
	return &Aggregator{
		queue:      q,
		buffer:     buf,
		session:    session,
		wait:       wait,
		maxRecords: maxRecords,
		logger:     logger,
		metrics:    metrics,
	}
}

// batchWriter appends bodies under session markers.
type batchWriter struct {
	out     bytes.Buffer
	session string
	started bool
}

func (w *batchWriter) add(session, body string) {
	if !w.started || session != w.session {
		w.out.WriteString(buffer.Marker(session))
		w.session = session
		w.started = true
	}
	w.out.WriteString(body)
	w.out.WriteByte('\n')
}

// Drain empties the queue into one live batch. Persist-flagged
// records are also collected into a second batch, with its own
// markers, which is written to the buffer in a single EmplaceBack
// once the drain ends. A failed buffer write is logged; the live
// batch is returned regardless.
func (a *Aggregator) Drain() []byte {
	var live, persisted batchWriter
	records, persistedRecords := 0, 0

	for a.maxRecords <= 0 || records < a.maxRecords {
		record, status := a.queue.Get(a.wait)
		if status != queue.StatusOK {
			break
		}
		records++

		session, body := a.split(record)
		live.add(session, body)
		if record.Persist {
			persisted.add(session, body)
			persistedRecords++
		}
	}

	a.metrics.RecordsAggregated.Add(float64(records))
	if persisted.out.Len() > 0 {
		if err := a.buffer.EmplaceBack(persisted.out.Bytes()); err != nil {
			a.metrics.PersistFailures.Inc()
			a.logger.Warn("persisting batch failed",
				"error", err,
				"records", persistedRecords,
				"bytes", persisted.out.Len(),
			)
		} else {
			a.metrics.RecordsPersisted.Add(float64(persistedRecords))
		}
	}
	return live.out.Bytes()
}

// split returns the session a record belongs to and the body to send.
func (a *Aggregator) split(record Record) (session, body string) {
	if record.CrossSession {
		if prefix, rest, found := strings.Cut(record.Data, ","); found {
			return prefix, rest
		}
		a.logger.Debug("cross-session record has no session prefix", "data", record.Data)
	}
	return a.session.Get(), record.Data
}
