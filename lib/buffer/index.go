// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// PageScale selects the page size class: pages are 1<<(9+PageScale)
	// bytes. Changing it changes indexTag, so buffers written by a
	// build with a different scale open empty.
	PageScale = 1

	// PageSize is the size of one data file page.
	PageSize = 1 << (9 + PageScale)

	indexVersion    = 0x1
	indexHeaderSize = 8
	indexEntrySize  = 8

	// maxPages bounds capacity: slot numbers and the entry count are
	// both stored as uint16.
	maxPages = 0xFFFF
)

// indexTag identifies the index layout and page size of this build.
const indexTag = byte(PageScale&0x07 | indexVersion<<3)

// errIndexIncompatible is returned when an index was written with a
// different page size or format version.
var errIndexIncompatible = errors.New("index format or page size mismatch")

// pageEntry locates one page of a batch.
type pageEntry struct {
	slot  uint16
	used  int // 1..PageSize
	group uint8
}

func encodeIndex(entries []pageEntry, runs int) []byte {
	data := make([]byte, indexHeaderSize+len(entries)*indexEntrySize)
	data[0] = indexTag
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(entries)))
	binary.LittleEndian.PutUint16(data[4:6], uint16(runs))

	for i, entry := range entries {
		record := data[indexHeaderSize+i*indexEntrySize:]
		binary.LittleEndian.PutUint16(record[0:2], entry.slot)
		binary.LittleEndian.PutUint16(record[2:4], uint16(entry.used-1))
		record[4] = entry.group
	}
	return data
}

// decodeIndex parses an index file. An empty file is an empty index.
// A short file keeps the complete entries it does contain. The stored
// run count is ignored; callers recount runs from the group flags.
func decodeIndex(data []byte) ([]pageEntry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < indexHeaderSize {
		return nil, fmt.Errorf("index header truncated at %d bytes", len(data))
	}
	if data[0] != indexTag {
		return nil, fmt.Errorf("%w: tag %#02x, want %#02x", errIndexIncompatible, data[0], indexTag)
	}

	count := int(binary.LittleEndian.Uint16(data[2:4]))
	if available := (len(data) - indexHeaderSize) / indexEntrySize; available < count {
		count = available
	}

	entries := make([]pageEntry, 0, count)
	for i := 0; i < count; i++ {
		record := data[indexHeaderSize+i*indexEntrySize:]
		used := int(binary.LittleEndian.Uint16(record[2:4])) + 1
		if used > PageSize {
			return nil, fmt.Errorf("index entry %d claims %d bytes in a %d byte page", i, used, PageSize)
		}
		entries = append(entries, pageEntry{
			slot:  binary.LittleEndian.Uint16(record[0:2]),
			used:  used,
			group: record[4],
		})
	}
	return entries, nil
}

// countRuns counts maximal stretches of equal group flags.
func countRuns(entries []pageEntry) int {
	runs := 0
	for i, entry := range entries {
		if i == 0 || entry.group != entries[i-1].group {
			runs++
		}
	}
	return runs
}

// frontRunLength returns how many leading entries form the oldest run.
func frontRunLength(entries []pageEntry) int {
	if len(entries) == 0 {
		return 0
	}
	n := 1
	for n < len(entries) && entries[n].group == entries[0].group {
		n++
	}
	return n
}
