// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !(darwin || linux) || android

package loader

import "fmt"

// NativeOpener opens modules with the platform dynamic loader. This
// platform has none that modelcache supports.
type NativeOpener struct{}

func (NativeOpener) Open(path string) (Handle, error) {
	return nil, fmt.Errorf("opening %s: %w", path, ErrUnsupported)
}
