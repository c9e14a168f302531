// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces small files so that readers see either
// the old contents or the new contents, never a mix.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write replaces path with data by writing path+".tmp" and renaming
// it into place. With durable set, the temporary file is fsynced
// before the rename and the parent directory after it; otherwise the
// rename is atomic but may be lost on power failure.
//
// The parent directory must already exist.
func Write(path string, data []byte, perm os.FileMode, durable bool) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporaryPath, err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if durable {
		if err := file.Sync(); err != nil {
			file.Close()
			os.Remove(temporaryPath)
			return fmt.Errorf("syncing %s: %w", temporaryPath, err)
		}
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing %s: %w", temporaryPath, err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	if durable {
		if parent, err := os.Open(filepath.Dir(path)); err == nil {
			parent.Sync()
			parent.Close()
		}
	}
	return nil
}
