// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fitstore persists fit results as gzip-compressed blobs keyed
// by caller-chosen names.
//
// A fit name is a slash-separated path such as
// "models/2uxewutp/fits/abcdefgh". Every segment but the last names a
// directory under the store root; the last segment is the file stem,
// stored as "<stem>.dat.gz". No identity derivation happens here: the
// caller owns name uniqueness (see modelid.DeriveFitName). Because fit
// names conventionally start with their model identity, fits sit inside
// the model's cache directory and disappear with it.
//
// gzip (RFC 1952) is a stable, self-describing stream format, so blobs
// stay readable by any later process without out-of-band parameters.
//
// Writes go through a temporary file in the destination directory and a
// rename. A reader never observes a partially written blob under
// single-writer use; concurrent writers of one name race, and the last
// rename wins.
package fitstore
