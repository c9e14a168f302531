// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import "math/bits"

// occupancy is a bitmap of live page slots. Its extent grows to cover
// the highest slot ever referenced, which can exceed the capacity
// after the capacity is lowered or an index from a larger buffer is
// loaded.
type occupancy struct {
	words  []uint64
	extent int
}

func newOccupancy(extent int) *occupancy {
	o := &occupancy{}
	o.grow(extent)
	return o
}

func (o *occupancy) grow(extent int) {
	if extent <= o.extent {
		return
	}
	for len(o.words)*64 < extent {
		o.words = append(o.words, 0)
	}
	o.extent = extent
}

func (o *occupancy) set(slot int) {
	o.grow(slot + 1)
	o.words[slot/64] |= 1 << (slot % 64)
}

func (o *occupancy) clear(slot int) {
	if slot < o.extent {
		o.words[slot/64] &^= 1 << (slot % 64)
	}
}

func (o *occupancy) test(slot int) bool {
	return slot < o.extent && o.words[slot/64]&(1<<(slot%64)) != 0
}

// firstFree returns the lowest unused slot below limit, or -1.
func (o *occupancy) firstFree(limit int) int {
	for slot := 0; slot < limit; slot++ {
		if !o.test(slot) {
			return slot
		}
	}
	return -1
}

// freeBelow counts unused slots below limit.
func (o *occupancy) freeBelow(limit int) int {
	used := 0
	for slot := 0; slot < limit && slot < o.extent; slot++ {
		if o.test(slot) {
			used++
		}
	}
	return limit - used
}

func (o *occupancy) count() int {
	n := 0
	for _, word := range o.words {
		n += bits.OnesCount64(word)
	}
	return n
}

// reset clears every bit and shrinks the extent to extent.
func (o *occupancy) reset(extent int) {
	o.words = o.words[:0]
	o.extent = 0
	o.grow(extent)
}
