// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for modelcache.
//
// Configuration comes from a single file named by either the
// MODELCACHE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no ~/.config discovery and no
// automatic file search. [Resolve] picks between the two and falls
// back to [Default] only when neither is given.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${MODELCACHE_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
package config
