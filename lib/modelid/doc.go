// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package modelid derives the short, deterministic identities that
// name compiled models and stored fits in the modelcache.
//
// A model identity looks like "models/2uxewutp". The token is the
// lowercase base32 encoding of a 5-byte BLAKE3 keyed hash over the
// program source and an [Environment] fingerprint: the modelcache
// version, the GOOS/GOARCH platform, the pointer width, the Go runtime
// version, and the absolute path of the running executable. Any change
// to the toolchain that could produce a binary-incompatible module
// therefore produces a different identity, and a module built for one
// environment is never loaded from the cache by another.
//
// Five bytes keep directory names at eight characters. Collisions are
// expected only after roughly a million distinct identities, which is
// far beyond the volume of a per-user cache.
//
// Fields are length-prefixed before hashing so that two different
// field tuples can never concatenate to the same byte stream. Model
// and fit hashes use separate domain keys, following the same domain
// separation scheme as the artifact hashes.
package modelid
