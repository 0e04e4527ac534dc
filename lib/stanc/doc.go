// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stanc wraps the external transpiler that turns a Stan
// program into C++ source.
//
// The transpiler is a collaborator, not part of the cache: [Transpiler]
// captures its contract (source and internal model name in, generated
// code and warning text out), and [Command] implements it by running a
// stanc binary. Rejected programs produce a [*CompilationError] whose
// message carries the transpiler's text verbatim, including the
// "Syntax error" or "Semantic error" phrase that names the category.
package stanc
