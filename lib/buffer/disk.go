// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package buffer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/danjacques/gofslock/fslock"

	"github.com/edgerelay/edgerelay/lib/atomicfile"
)

// DiskOptions configures OpenDisk.
type DiskOptions struct {
	// Capacity is the number of pages retained, 1..65535.
	Capacity int

	// Sync fsyncs page writes and the index before each mutation
	// returns. Off by default: flash wear matters more on the target
	// devices than the last few records before a power cut.
	Sync bool

	Logger *slog.Logger
}

// DiskBuffer is a Buffer persisted as a data file of fixed-size pages
// (path) and a binary index (path + ".index"). A lock file
// (path + ".lock") keeps a second process from opening the same
// buffer.
type DiskBuffer struct {
	path      string
	indexPath string
	store     pageStore
	lock      fslock.Handle
	sync      bool
	logger    *slog.Logger

	capacity int
	entries  []pageEntry
	runs     int
	used     *occupancy
	evicted  uint64

	// page is scratch space for Front.
	page []byte
}

var _ Buffer = (*DiskBuffer)(nil)

// OpenDisk opens or creates the disk buffer rooted at path. An index
// written by an incompatible build is discarded with a warning and the
// buffer opens empty.
func OpenDisk(path string, options DiskOptions) (*DiskBuffer, error) {
	lock, err := fslock.Lock(path + ".lock")
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return nil, fmt.Errorf("disk buffer %s is in use by another process", path)
		}
		return nil, fmt.Errorf("locking disk buffer %s: %w", path, err)
	}

	store, err := openPageFile(path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	buffer, err := openDiskWithStore(path, store, options)
	if err != nil {
		store.Close()
		lock.Unlock()
		return nil, err
	}
	buffer.lock = lock
	return buffer, nil
}

func openDiskWithStore(path string, store pageStore, options DiskOptions) (*DiskBuffer, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &DiskBuffer{
		path:      path,
		indexPath: path + ".index",
		store:     store,
		sync:      options.Sync,
		logger:    logger,
		capacity:  clampCapacity(options.Capacity),
		page:      make([]byte, PageSize),
	}
	d.used = newOccupancy(d.capacity)

	data, err := os.ReadFile(d.indexPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading buffer index: %w", err)
	}
	entries, err := decodeIndex(data)
	if err != nil {
		d.logger.Warn("discarding buffer index",
			"path", d.indexPath,
			"error", err,
		)
		entries = nil
	}

	d.entries = entries
	d.runs = countRuns(entries)
	for _, entry := range entries {
		d.used.set(int(entry.slot))
	}
	return d, nil
}

func clampCapacity(n int) int {
	switch {
	case n < 1:
		return 1
	case n > maxPages:
		return maxPages
	}
	return n
}

func (d *DiskBuffer) Capacity() int { return d.capacity }

// SetCapacity changes the page limit. Pages above a lowered limit stay
// in use until their batch is consumed; Clear trims the file.
func (d *DiskBuffer) SetCapacity(n int) {
	d.capacity = clampCapacity(n)
	d.used.grow(d.capacity)
}

func (d *DiskBuffer) IsEmpty() bool   { return len(d.entries) == 0 }
func (d *DiskBuffer) RunCount() int   { return d.runs }
func (d *DiskBuffer) EntryCount() int { return len(d.entries) }
func (d *DiskBuffer) Evicted() uint64 { return d.evicted }

// Front concatenates the pages of the oldest run.
func (d *DiskBuffer) Front() ([]byte, error) {
	if d.store == nil {
		return nil, ErrClosed
	}
	n := frontRunLength(d.entries)
	if n == 0 {
		return nil, nil
	}

	size := 0
	for _, entry := range d.entries[:n] {
		size += entry.used
	}
	batch := make([]byte, 0, size)
	for _, entry := range d.entries[:n] {
		page := d.page[:entry.used]
		if err := d.store.ReadAt(page, pageOffset(entry.slot)); err != nil {
			return nil, err
		}
		batch = append(batch, page...)
	}
	return batch, nil
}

// PopFront releases the pages of the oldest run.
func (d *DiskBuffer) PopFront() error {
	if d.store == nil {
		return ErrClosed
	}
	n := frontRunLength(d.entries)
	if n == 0 {
		return nil
	}

	remaining := append([]pageEntry(nil), d.entries[n:]...)
	if err := d.writeIndex(remaining, d.runs-1); err != nil {
		return err
	}
	for _, entry := range d.entries[:n] {
		d.used.clear(int(entry.slot))
	}
	d.entries = remaining
	d.runs--
	return nil
}

// EmplaceBack appends data in place when it fits in the newest page,
// and otherwise writes it as a new run across freshly allocated pages.
// When too few pages are free, whole runs are evicted oldest first.
// A failed write leaves the committed buffer unchanged, apart from
// runs already evicted to make room.
func (d *DiskBuffer) EmplaceBack(data []byte) error {
	if d.store == nil {
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}

	if last := len(d.entries) - 1; last >= 0 && d.entries[last].used+len(data) <= PageSize {
		entry := d.entries[last]
		if err := d.store.WriteAt(data, pageOffset(entry.slot)+int64(entry.used)); err != nil {
			return err
		}
		if err := d.syncData(); err != nil {
			return err
		}
		updated := append([]pageEntry(nil), d.entries...)
		updated[last].used += len(data)
		if err := d.writeIndex(updated, d.runs); err != nil {
			return err
		}
		d.entries = updated
		return nil
	}

	pages := (len(data) + PageSize - 1) / PageSize
	if pages > d.capacity {
		return fmt.Errorf("%w: %d bytes need %d pages, capacity is %d",
			ErrRecordTooLarge, len(data), pages, d.capacity)
	}
	for d.used.freeBelow(d.capacity) < pages && len(d.entries) > 0 {
		if err := d.PopFront(); err != nil {
			return fmt.Errorf("evicting oldest batch: %w", err)
		}
		d.evicted++
		d.logger.Info("disk buffer full, evicted oldest batch",
			"capacity", d.capacity,
			"runs", d.runs,
		)
	}

	group := uint8(0)
	if len(d.entries) > 0 && d.entries[len(d.entries)-1].group == 0 {
		group = 1
	}

	updated := append([]pageEntry(nil), d.entries...)
	var allocated []int
	release := func() {
		for _, slot := range allocated {
			d.used.clear(slot)
		}
	}
	for offset := 0; offset < len(data); offset += PageSize {
		chunk := data[offset:min(offset+PageSize, len(data))]
		slot := d.used.firstFree(d.capacity)
		if slot < 0 {
			release()
			return fmt.Errorf("no free page among %d after eviction", d.capacity)
		}
		d.used.set(slot)
		allocated = append(allocated, slot)

		if err := d.store.WriteAt(chunk, pageOffset(uint16(slot))); err != nil {
			release()
			return err
		}
		updated = append(updated, pageEntry{slot: uint16(slot), used: len(chunk), group: group})
	}
	if err := d.syncData(); err != nil {
		release()
		return err
	}
	if err := d.writeIndex(updated, d.runs+1); err != nil {
		release()
		return err
	}
	d.entries = updated
	d.runs++
	return nil
}

// Clear drops every batch, rewrites an empty index and trims the data
// file to the current capacity.
func (d *DiskBuffer) Clear() error {
	if d.store == nil {
		return ErrClosed
	}
	if err := d.writeIndex(nil, 0); err != nil {
		return err
	}
	d.entries = nil
	d.runs = 0
	d.used.reset(d.capacity)

	limit := int64(d.capacity) * PageSize
	size, err := d.store.Size()
	if err != nil {
		return err
	}
	if size > limit {
		if err := d.store.Truncate(limit); err != nil {
			return err
		}
		d.logger.Info("disk buffer truncated to capacity",
			"path", d.path,
			"from_bytes", size,
			"to_bytes", limit,
		)
	}
	return nil
}

// Close releases the data file and the lock. The buffer is unusable
// afterwards.
func (d *DiskBuffer) Close() error {
	if d.store == nil {
		return nil
	}
	err := d.store.Close()
	d.store = nil
	if d.lock != nil {
		if unlockErr := d.lock.Unlock(); err == nil {
			err = unlockErr
		}
		d.lock = nil
	}
	return err
}

func (d *DiskBuffer) writeIndex(entries []pageEntry, runs int) error {
	if err := atomicfile.Write(d.indexPath, encodeIndex(entries, runs), 0o644, d.sync); err != nil {
		return fmt.Errorf("writing buffer index: %w", err)
	}
	return nil
}

func (d *DiskBuffer) syncData() error {
	if !d.sync {
		return nil
	}
	return d.store.Sync()
}

func pageOffset(slot uint16) int64 {
	return int64(slot) * PageSize
}
