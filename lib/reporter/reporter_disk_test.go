// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package reporter

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/edgerelay/edgerelay/lib/buffer"
)

// A full disk buffer evicts the run being sent when the live batch is
// persisted. The run behind it must survive the cycle and go out next.
func TestCycleKeepsNextRunWhenHeadEvicted(t *testing.T) {
	disk, err := buffer.OpenDisk(filepath.Join(t.TempDir(), "buffer"), buffer.DiskOptions{Capacity: 2})
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	t.Cleanup(func() { disk.Close() })

	run1 := "15,A\n" + strings.Repeat("1", buffer.PageSize-6) + "\n"
	run2 := "15,A\n" + strings.Repeat("2", buffer.PageSize-6) + "\n"
	for _, run := range []string{run1, run2} {
		if err := disk.EmplaceBack([]byte(run)); err != nil {
			t.Fatalf("EmplaceBack: %v", err)
		}
	}

	http := &fakeHTTP{}
	r := newRig(t, disk, func(r *rig) *Delivery { return NewHTTPDelivery(http, r.inbound, r.options()) })
	ctx := context.Background()

	r.outbound.Put(Record{Data: "live", Persist: true})
	r.reporter.cycle(ctx, true)

	if got, want := http.sent(), []string{run1}; !slices.Equal(got, want) {
		t.Fatalf("first cycle sent %d payloads, want run1 only", len(got))
	}
	if disk.Evicted() != 1 || disk.RunCount() != 2 {
		t.Fatalf("evicted = %d, runs = %d, want 1 and 2", disk.Evicted(), disk.RunCount())
	}
	front, err := disk.Front()
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	if string(front) != run2 {
		t.Fatalf("front after first cycle is %d bytes, want run2", len(front))
	}

	r.reporter.cycle(ctx, true)
	r.reporter.cycle(ctx, true)

	if got, want := http.sent(), []string{run1, run2, "15,A\nlive\n"}; !slices.Equal(got, want) {
		t.Fatalf("sent %d payloads, want run1, run2, then the persisted record", len(got))
	}
	if !disk.IsEmpty() {
		t.Fatal("buffer not empty after the backlog drained")
	}
}
