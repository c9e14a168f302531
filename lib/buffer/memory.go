// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import "bytes"

// ChunkLines is how many lines the memory buffer hands out and evicts
// at a time.
const ChunkLines = 256

// minMemoryCapacity keeps room for a marker and one line under it.
const minMemoryCapacity = 2

// MemoryBuffer is a Buffer of text lines held in memory. Batches are
// chunks of up to ChunkLines lines. Eviction never leaves a
// continuation line at the front without a marker naming its session.
type MemoryBuffer struct {
	capacity int
	lines    [][]byte
	evicted  uint64
}

var _ Buffer = (*MemoryBuffer)(nil)

// NewMemory returns an empty buffer retaining at most capacity lines.
func NewMemory(capacity int) *MemoryBuffer {
	return &MemoryBuffer{capacity: max(capacity, minMemoryCapacity)}
}

func (m *MemoryBuffer) Capacity() int { return m.capacity }

// SetCapacity changes the line limit. A lowered limit takes effect on
// the next EmplaceBack.
func (m *MemoryBuffer) SetCapacity(n int) { m.capacity = max(n, minMemoryCapacity) }

func (m *MemoryBuffer) IsEmpty() bool   { return len(m.lines) == 0 }
func (m *MemoryBuffer) EntryCount() int { return len(m.lines) }
func (m *MemoryBuffer) Evicted() uint64 { return m.evicted }

// RunCount is the number of chunks, rounded up.
func (m *MemoryBuffer) RunCount() int {
	return (len(m.lines) + ChunkLines - 1) / ChunkLines
}

// Front returns the first chunk.
func (m *MemoryBuffer) Front() ([]byte, error) {
	if len(m.lines) == 0 {
		return nil, nil
	}
	return bytes.Join(m.lines[:min(ChunkLines, len(m.lines))], nil), nil
}

// PopFront drops the first chunk. When the chunk ends inside a batch,
// the last marker in the chunk moves to the new front so the lines
// that remain keep their session. The carried marker stands in for one
// of the popped lines, so EntryCount only shrinks.
func (m *MemoryBuffer) PopFront() error {
	if len(m.lines) <= ChunkLines {
		m.lines = nil
		return nil
	}

	next := m.lines[ChunkLines]
	if IsMarker(next) {
		m.lines = m.lines[ChunkLines:]
		return nil
	}

	var carried []byte
	for i := ChunkLines - 1; i >= 0; i-- {
		if IsMarker(m.lines[i]) {
			carried = m.lines[i]
			break
		}
	}
	rest := m.lines[ChunkLines:]
	if carried == nil {
		m.lines = rest
		return nil
	}
	m.lines = append([][]byte{carried}, rest...)
	return nil
}

// EmplaceBack appends data one line at a time, evicting from the
// front whenever the buffer is full. A final line without a newline
// is stored as is.
func (m *MemoryBuffer) EmplaceBack(data []byte) error {
	for len(data) > 0 {
		end := bytes.IndexByte(data, '\n') + 1
		if end == 0 {
			end = len(data)
		}
		line := append([]byte(nil), data[:end]...)
		data = data[end:]

		for len(m.lines) >= m.capacity {
			m.evictLine()
		}
		m.lines = append(m.lines, line)
	}
	return nil
}

// evictLine discards the oldest data line. If the front is a marker
// with continuation lines behind it, the first continuation line goes
// and the marker stays; a marker left with nothing under it goes too.
func (m *MemoryBuffer) evictLine() {
	if len(m.lines) == 0 {
		return
	}
	m.evicted++

	if !IsMarker(m.lines[0]) || len(m.lines) == 1 || IsMarker(m.lines[1]) {
		m.lines = m.lines[1:]
		return
	}

	marker := m.lines[0]
	m.lines = m.lines[1:]
	m.lines[0] = marker
	if len(m.lines) > 1 && IsMarker(m.lines[1]) {
		m.lines = m.lines[1:]
	}
}

func (m *MemoryBuffer) Clear() error {
	m.lines = nil
	return nil
}
