// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelcache

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeFileAtomic replaces directory/name with data. The bytes are
// written to a temporary file in the same directory and renamed into
// place, so a concurrent reader sees either the old or the new file.
func writeFileAtomic(directory, name string, data []byte) error {
	tmpFile, err := os.CreateTemp(directory, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}

	finalPath := filepath.Join(directory, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming %s into place: %w", finalPath, err)
	}

	success = true
	return nil
}
