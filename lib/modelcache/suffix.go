// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelcache

import (
	"runtime"
	"strings"
)

// ExtensionSuffixes returns the filename suffixes of loadable native
// modules on the running platform. The first entry is the suffix used
// for newly built modules.
func ExtensionSuffixes() []string {
	return extensionSuffixes(runtime.GOOS)
}

func extensionSuffixes(goos string) []string {
	switch goos {
	case "darwin", "ios":
		return []string{".so", ".dylib"}
	case "windows":
		return []string{".dll", ".pyd"}
	default:
		return []string{".so"}
	}
}

// HasExtensionSuffix reports whether name ends in one of the platform's
// loadable-module suffixes.
func HasExtensionSuffix(name string) bool {
	for _, suffix := range ExtensionSuffixes() {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
