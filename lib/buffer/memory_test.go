// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

// batch renders a marker for session followed by n continuation lines
// that carry their session so tests can check attribution.
func batch(session string, start, n int) string {
	var b strings.Builder
	b.WriteString(Marker(session))
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s-%d\n", session, start+i)
	}
	return b.String()
}

// checkAttribution fails if any continuation line in text is not
// preceded by a marker for its own session.
func checkAttribution(t *testing.T, text string) {
	t.Helper()
	current := ""
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if IsMarker([]byte(line)) {
			current = strings.TrimSuffix(strings.TrimPrefix(line, MarkerPrefix), "\n")
			continue
		}
		session, _, _ := strings.Cut(line, "-")
		if current == "" {
			t.Fatalf("continuation line %q has no marker ahead of it", line)
		}
		if session != current {
			t.Fatalf("continuation line %q attributed to session %q", line, current)
		}
	}
}

func TestMemoryBufferFrontAndCounts(t *testing.T) {
	m := NewMemory(1000)
	if !m.IsEmpty() || m.RunCount() != 0 {
		t.Fatal("new memory buffer not empty")
	}

	mustEmplace(t, m, batch("A", 0, 299))
	if m.EntryCount() != 300 || m.RunCount() != 2 {
		t.Fatalf("entries=%d runs=%d, want 300/2", m.EntryCount(), m.RunCount())
	}

	front := mustFront(t, m)
	if lines := strings.Count(front, "\n"); lines != ChunkLines {
		t.Fatalf("Front() has %d lines, want %d", lines, ChunkLines)
	}
	if !strings.HasPrefix(front, "15,A\nA-0\n") {
		t.Fatalf("Front() starts %q", front[:12])
	}
}

func TestMemoryBufferPopFrontSmallClears(t *testing.T) {
	m := NewMemory(1000)
	mustEmplace(t, m, batch("A", 0, 10))
	mustPop(t, m)
	if !m.IsEmpty() {
		t.Fatalf("EntryCount() = %d after popping a partial chunk", m.EntryCount())
	}
}

func TestMemoryBufferPopFrontCleanBoundary(t *testing.T) {
	m := NewMemory(1000)
	mustEmplace(t, m, batch("A", 0, ChunkLines-1))
	mustEmplace(t, m, batch("B", 0, 3))

	mustPop(t, m)
	if got := mustFront(t, m); got != batch("B", 0, 3) {
		t.Fatalf("Front() = %q, want batch B", got)
	}
}

func TestMemoryBufferPopFrontCarriesMarker(t *testing.T) {
	m := NewMemory(1000)
	mustEmplace(t, m, batch("A", 0, 100))
	mustEmplace(t, m, batch("B", 0, 200))

	mustPop(t, m)

	// Batch B's marker is line 101, so B-154 is the first line past
	// the chunk and the B marker moves ahead of it.
	want := batch("B", 154, 46)
	if got := mustFront(t, m); got != want {
		t.Fatalf("Front() = %q..., want %q...", got[:20], want[:20])
	}
	if m.EntryCount() != 47 {
		t.Fatalf("EntryCount() = %d, want 47", m.EntryCount())
	}
}

func TestMemoryBufferPopFrontCarryAtCapacity(t *testing.T) {
	m := NewMemory(ChunkLines + 1)
	mustEmplace(t, m, batch("A", 0, ChunkLines))
	if m.EntryCount() != m.Capacity() {
		t.Fatalf("EntryCount() = %d, want a full buffer of %d", m.EntryCount(), m.Capacity())
	}

	mustPop(t, m)

	if got, want := mustFront(t, m), batch("A", ChunkLines-1, 1); got != want {
		t.Fatalf("Front() = %q, want %q", got, want)
	}
	if m.EntryCount() != 2 {
		t.Fatalf("EntryCount() = %d, want 2", m.EntryCount())
	}
}

func TestMemoryBufferEvictionKeepsMarker(t *testing.T) {
	m := NewMemory(4)
	mustEmplace(t, m, batch("A", 0, 3))
	mustEmplace(t, m, "A-3\n")

	if got := mustFront(t, m); got != "15,A\nA-1\nA-2\nA-3\n" {
		t.Fatalf("Front() = %q", got)
	}
	if m.Evicted() != 1 {
		t.Fatalf("Evicted() = %d, want 1", m.Evicted())
	}
}

func TestMemoryBufferEvictionDropsEmptiedMarker(t *testing.T) {
	m := NewMemory(4)
	mustEmplace(t, m, batch("A", 0, 1))
	mustEmplace(t, m, batch("B", 0, 1))
	mustEmplace(t, m, "B-1\n")

	if got := mustFront(t, m); got != "15,B\nB-0\nB-1\n" {
		t.Fatalf("Front() = %q", got)
	}
}

func TestMemoryBufferMinimumCapacity(t *testing.T) {
	m := NewMemory(0)
	if m.Capacity() != minMemoryCapacity {
		t.Fatalf("Capacity() = %d, want %d", m.Capacity(), minMemoryCapacity)
	}
	mustEmplace(t, m, batch("A", 0, 5))
	if got := mustFront(t, m); got != "15,A\nA-4\n" {
		t.Fatalf("Front() = %q", got)
	}
}

func TestMemoryBufferDrainKeepsEveryLine(t *testing.T) {
	m := NewMemory(4096)
	var want []string
	for i, session := range []string{"A", "B", "C", "A"} {
		data := batch(session, i*1000, 97*(i+1))
		want = append(want, continuationLines(data)...)
		mustEmplace(t, m, data)
	}

	var got []string
	for !m.IsEmpty() {
		front := mustFront(t, m)
		checkAttribution(t, front)
		got = append(got, continuationLines(front)...)
		mustPop(t, m)
	}
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Fatalf("drained %d continuation lines, want %d in the same order", len(got), len(want))
	}
}

func continuationLines(text string) []string {
	var lines []string
	for _, line := range strings.SplitAfter(text, "\n") {
		if line != "" && !IsMarker([]byte(line)) {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestMemoryBufferAttributionUnderRandomLoad(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	sessions := []string{"A", "B", "C", "D"}

	for round := 0; round < 50; round++ {
		m := NewMemory(2 + random.Intn(600))
		next := 0
		for step := 0; step < 200; step++ {
			if random.Intn(5) == 0 {
				mustPop(t, m)
			} else {
				session := sessions[random.Intn(len(sessions))]
				n := random.Intn(300)
				mustEmplace(t, m, batch(session, next, n))
				next += n
			}
			checkAttribution(t, mustFront(t, m))
			if m.EntryCount() > m.Capacity() {
				t.Fatalf("EntryCount() = %d over capacity %d", m.EntryCount(), m.Capacity())
			}
		}
	}
}

func TestMemoryBufferSetCapacity(t *testing.T) {
	m := NewMemory(100)
	mustEmplace(t, m, batch("A", 0, 50))
	m.SetCapacity(10)
	mustEmplace(t, m, "A-50\n")
	if m.EntryCount() != 10 {
		t.Fatalf("EntryCount() = %d after lowering capacity, want 10", m.EntryCount())
	}
	checkAttribution(t, mustFront(t, m))

	if err := m.Clear(); err != nil || !m.IsEmpty() {
		t.Fatalf("Clear: err=%v entries=%d", err, m.EntryCount())
	}
}
