// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	for _, durable := range []bool{false, true} {
		for _, contents := range []string{"first", "second, longer than the first", "3"} {
			if err := Write(path, []byte(contents), 0o644, durable); err != nil {
				t.Fatalf("Write(%q, durable=%v): %v", contents, durable, err)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile: %v", err)
			}
			if string(got) != contents {
				t.Fatalf("contents = %q, want %q", got, contents)
			}
		}
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestWriteFailureKeepsOldContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	if err := Write(path, []byte("committed"), 0o644, false); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// A directory squatting on the temporary name makes the create fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := Write(path, []byte("lost"), 0o644, false); err == nil {
		t.Fatal("Write succeeded with the temporary path blocked")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "committed" {
		t.Fatalf("contents = %q after failed write, want committed", got)
	}
}

func TestWriteMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state")
	if err := Write(path, []byte("x"), 0o644, true); err == nil {
		t.Fatal("Write into a missing directory succeeded")
	}
}
