// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It centralizes
// the one legitimate raw I/O pattern outside the structured logger:
// reporting a fatal error from main() to stderr, when the logger may
// not be initialized, and exiting.
package process
