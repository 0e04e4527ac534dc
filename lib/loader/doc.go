// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loader opens built models as in-process modules.
//
// Model modules are native shared objects produced by the C++
// toolchain, not Go plugins. [NativeOpener] opens them with dlopen
// through purego, so no cgo is required. Every module exports the same
// entry symbol, [ServicesSymbol]; the loader resolves its address and
// leaves calling into it to the caller.
//
// Handles are cached per module path, so several models can be loaded
// at once and loading the same identity twice returns the same
// [*Module]. Opening goes through an [Opener] so tests can substitute
// their own.
package loader
