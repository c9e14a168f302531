// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package buffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pageStore is the data file as the disk buffer sees it: positioned
// page reads and writes plus size management.
type pageStore interface {
	ReadAt(p []byte, offset int64) error
	WriteAt(p []byte, offset int64) error
	Size() (int64, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// pageFile is a pageStore over a raw descriptor. Pages are addressed
// with pread/pwrite so no seek state is shared between operations.
type pageFile struct {
	path string
	fd   int
}

func openPageFile(path string) (*pageFile, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening data file %s: %w", path, err)
	}
	return &pageFile{path: path, fd: fd}, nil
}

func (f *pageFile) ReadAt(p []byte, offset int64) error {
	for done := 0; done < len(p); {
		n, err := unix.Pread(f.fd, p[done:], offset+int64(done))
		if err != nil {
			return fmt.Errorf("reading %s at %d: %w", f.path, offset+int64(done), err)
		}
		if n == 0 {
			return fmt.Errorf("reading %s at %d: unexpected end of file", f.path, offset+int64(done))
		}
		done += n
	}
	return nil
}

func (f *pageFile) WriteAt(p []byte, offset int64) error {
	for done := 0; done < len(p); {
		n, err := unix.Pwrite(f.fd, p[done:], offset+int64(done))
		if err != nil {
			return fmt.Errorf("writing %s at %d: %w", f.path, offset+int64(done), err)
		}
		done += n
	}
	return nil
}

func (f *pageFile) Size() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(f.fd, &stat); err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.path, err)
	}
	return stat.Size, nil
}

func (f *pageFile) Truncate(size int64) error {
	if err := unix.Ftruncate(f.fd, size); err != nil {
		return fmt.Errorf("truncating %s to %d: %w", f.path, size, err)
	}
	return nil
}

func (f *pageFile) Sync() error {
	if err := unix.Fsync(f.fd); err != nil {
		return fmt.Errorf("syncing %s: %w", f.path, err)
	}
	return nil
}

func (f *pageFile) Close() error {
	return unix.Close(f.fd)
}
