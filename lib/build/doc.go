// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package build coordinates turning a program into a cached,
// loadable extension module.
//
// [Coordinator.Build] runs one build unconditionally:
//
//	Pending -> Transpiling -> Compiling -> Succeeded | Failed
//
// It derives the identity, ensures the model directory, transpiles
// (a [*stanc.CompilationError] stops the build before any native
// step), writes the generated C++ next to the module for inspection,
// and hands the native build to a bounded worker pool. Build returns
// the compiler output; it does not auto-skip and does not persist the
// build log.
//
// [Coordinator.Ensure] is the caller layer on top: it returns the
// cached result when a committed build exists and otherwise runs
// Build exactly once per identity, even when many goroutines in this
// process and other processes sharing the cache root ask at the same
// time. In-process callers join a singleflight group keyed by
// identity; across processes the model directory's flock serializes
// builders, and a builder that waited re-checks the cache before
// building. A build commits by writing the build log and then the
// manifest; a module file without a manifest is never reported as
// cached. [Coordinator.Rebuild] builds under the same lock without the
// cache check.
//
// The native build is the only step that leaves the caller's
// goroutine. Cancelling the caller's context stops the wait, not the
// compile: the worker runs the toolchain to completion and still
// records the manifest, so a later request finds the module.
package build
