// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolchain runs the native C++ compiler and linker that turn
// generated model code into a loadable extension module.
//
// An [Extension] describes one module the way a setuptools extension
// does: sources, macros, include and library search paths, libraries,
// extra compile and link flags, and prebuilt objects to link in.
// [Toolchain] builds a list of extensions into a destination directory
// and returns the captured compiler output, which carries warnings even
// on success. Failures return a [*BuildError] holding that output
// verbatim.
//
// [CXX] is the production implementation: one compile per source, one
// shared-library link per extension, every command run with its output
// captured rather than streamed. A build takes minutes, so callers run
// it off their request path (see lib/build).
package toolchain
