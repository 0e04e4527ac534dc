// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build (darwin || linux) && !android

package loader

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// NativeOpener opens modules with the platform dynamic loader
// (dlopen). Symbols bind immediately and stay local to the module, so
// several models exporting the same entry symbol load side by side.
type NativeOpener struct{}

func (NativeOpener) Open(path string) (Handle, error) {
	library, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	return &nativeHandle{library: library, path: path}, nil
}

type nativeHandle struct {
	library uintptr
	path    string
}

func (h *nativeHandle) Lookup(symbol string) (uintptr, error) {
	address, err := purego.Dlsym(h.library, symbol)
	if err != nil {
		return 0, fmt.Errorf("dlsym %s: %w", symbol, err)
	}
	return address, nil
}

func (h *nativeHandle) Close() error {
	if err := purego.Dlclose(h.library); err != nil {
		return fmt.Errorf("dlclose %s: %w", h.path, err)
	}
	return nil
}
