// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"bytes"
	"errors"
)

// MarkerPrefix starts every batch marker line: "15,<session>\n".
const MarkerPrefix = "15,"

var (
	// ErrRecordTooLarge is returned by EmplaceBack when a record needs
	// more pages than the buffer can ever hold.
	ErrRecordTooLarge = errors.New("buffer: record exceeds buffer capacity")

	// ErrClosed is returned by operations on a closed disk buffer.
	ErrClosed = errors.New("buffer: closed")
)

// Buffer is an ordered store of logical batches ("runs"). The reporter
// owns it exclusively; implementations are not safe for concurrent
// use.
type Buffer interface {
	// Capacity is the retention limit: pages for the disk variant,
	// lines for the memory variant.
	Capacity() int
	SetCapacity(n int)

	IsEmpty() bool
	// RunCount is the number of buffered batches.
	RunCount() int
	// EntryCount is the raw number of pages or lines held.
	EntryCount() int

	// Front returns the oldest batch without removing it. Empty when
	// the buffer is empty.
	Front() ([]byte, error)
	// PopFront removes exactly the oldest batch.
	PopFront() error
	// EmplaceBack appends data, extending the newest batch when it has
	// room and starting a new one otherwise. A full buffer evicts its
	// oldest batch to make space.
	EmplaceBack(data []byte) error
	// Clear drops everything.
	Clear() error

	// Evicted counts data discarded to make room for newer records.
	Evicted() uint64
}

// Marker returns the batch marker line for session.
func Marker(session string) string {
	return MarkerPrefix + session + "\n"
}

// IsMarker reports whether line is a batch marker.
func IsMarker(line []byte) bool {
	return bytes.HasPrefix(line, []byte(MarkerPrefix))
}
