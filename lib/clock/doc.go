// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock instead of calling time.Now or
// time.After directly. Real() provides the standard library behavior;
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	coordinator := build.New(build.Config{Clock: c, ...})
//	// ... start goroutines ...
//	c.WaitForTimers(1) // wait for a goroutine to start waiting
//	c.Advance(time.Second)
package clock
