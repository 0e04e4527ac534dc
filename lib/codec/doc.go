// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// modelcache packages.
//
// CBOR is used for on-disk metadata (the per-model build manifest) and
// for hashing structured values (fit request arguments). Both uses
// depend on Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// logical value always produces identical bytes, so a hash over the
// encoding is a hash over the value.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Types that are only persisted as CBOR use `cbor` struct tags.
package codec
