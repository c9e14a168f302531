// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import "testing"

func mustFront(t *testing.T, b Buffer) string {
	t.Helper()
	front, err := b.Front()
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	return string(front)
}

func mustEmplace(t *testing.T, b Buffer, data string) {
	t.Helper()
	if err := b.EmplaceBack([]byte(data)); err != nil {
		t.Fatalf("EmplaceBack(%d bytes): %v", len(data), err)
	}
}

func mustPop(t *testing.T, b Buffer) {
	t.Helper()
	if err := b.PopFront(); err != nil {
		t.Fatalf("PopFront: %v", err)
	}
}
