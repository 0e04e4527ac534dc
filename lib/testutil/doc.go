// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for modelcache
// packages.
//
// [RequireReceive] and [RequireClosed] bound every wait a test makes on
// a goroutine with a timeout, so a regression fails the test instead of
// hanging it. Tests of the build coordinator use them to wait for a
// fake toolchain to start and for Ensure results to arrive.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, such as distinct model sources or fit names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no modelcache-internal dependencies.
package testutil
