// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/modelcache/lib/codec"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

// Manifest records how a model directory was built. It is written
// after a successful native build and lets [Cache.LocateModuleFile]
// find the module by exact name.
type Manifest struct {
	Identity modelid.Identity `cbor:"identity"`

	// BuildID names the build attempt that produced the directory. It
	// matches the build_id attribute of that build's log records.
	BuildID string `cbor:"build_id,omitempty"`

	// ModuleFile is the module's filename within the model directory.
	ModuleFile string `cbor:"module_file"`

	// GeneratedSource is the filename of the transpiler output.
	GeneratedSource string `cbor:"generated_source,omitempty"`

	// TranspilerWarnings is the transpiler's warning text, kept so a
	// cached build can report the same warnings as a fresh one.
	TranspilerWarnings string `cbor:"transpiler_warnings,omitempty"`

	// Version and Platform describe the environment that built the
	// module. They are informational; the identity already covers them.
	Version  string `cbor:"version"`
	Platform string `cbor:"platform"`

	BuiltAt time.Time `cbor:"built_at"`
}

// WriteManifest replaces the manifest for manifest.Identity. The model
// directory must exist.
func (c *Cache) WriteManifest(manifest *Manifest) error {
	directory, err := c.existingModelDirectory(manifest.Identity)
	if err != nil {
		return err
	}
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest for %s: %w", manifest.Identity, err)
	}
	if err := writeFileAtomic(directory, manifestFile, data); err != nil {
		return fmt.Errorf("writing manifest for %s: %w", manifest.Identity, err)
	}
	return nil
}

// ReadManifest returns the manifest for id. The error matches
// ErrNotFound if the directory or manifest is absent.
func (c *Cache) ReadManifest(id modelid.Identity) (*Manifest, error) {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(directory, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("manifest for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest for %s: %w", id, err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", id, err)
	}
	if manifest.Identity != id {
		return nil, fmt.Errorf("manifest in %s names %s, want %s", directory, manifest.Identity, id)
	}
	return &manifest, nil
}
