// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package modelcache is the filesystem-backed artifact cache for
// compiled models.
//
// Every model identity owns one directory under the cache root:
//
//	<root>/models/<token>/
//	    model_<token>.cpp                      generated C++ source
//	    stan_services_model_<token><suffix>    loadable extension module
//	    stderr.log                             native compiler output
//	    build.cbor                             build manifest
//	    .build.lock                            cross-process build lock
//	    fits/<fit-token>.dat.gz                stored fits (lib/fitstore)
//
// The root is injected by the caller; [DefaultRoot] computes the
// conventional per-user, per-version location. Directories are created
// only by [Cache.EnsureModelDirectory]. Every read against a missing
// directory or file fails with an error matching [ErrNotFound] and
// never creates anything.
//
// All writes replace whole files through a temporary file and a
// rename, so readers in other processes see either the previous
// complete file or the new complete file. Concurrent builds of the
// same identity are the one unsafe case; [Cache.LockBuild] serializes
// them across processes.
//
// Nothing is held in memory between calls. Every operation re-reads
// the filesystem, which makes a single cache root safe to share
// between unrelated processes.
package modelcache
