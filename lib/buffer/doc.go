// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer implements the store-and-forward buffer between the
// aggregator and the delivery engine.
//
// Two variants share the Buffer interface. DiskBuffer keeps batches in
// fixed-size pages of a flat data file, indexed by a small binary
// index file that survives restarts. MemoryBuffer keeps text lines in
// a bounded slice and evicts in a way that never separates a
// continuation line from its session marker.
//
// # Index file
//
// All integers are little-endian.
//
//	header (8 bytes)
//	  0  tag       low 3 bits page scale, bits 3-6 format version
//	  1  flags     unused, written as 0
//	  2  entries   uint16, number of page entries that follow
//	  4  runs      uint16, number of batches
//	  6  reserved  uint16
//	entry (8 bytes, oldest first)
//	  0  slot      uint16, page slot in the data file
//	  2  used-1    uint16, bytes used in the page minus one
//	  4  group     uint8, alternates 0/1 between adjacent batches
//	  5  reserved  uint8 + uint16
//
// A header whose tag differs from the running build's makes the whole
// index untrusted: the buffer opens empty and the data file is left
// alone until pages are reused.
package buffer
