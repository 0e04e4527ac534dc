// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package modelcache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/modelcache/lib/modelid"
)

// ErrNotFound reports that a cache entry (model directory, build log,
// module file, manifest or fit) does not exist. Callers use it to tell
// "needs a build" apart from real failures.
var ErrNotFound = errors.New("not found")

// File and directory names within the cache.
const (
	modelsDir     = "models"
	buildLogFile  = "stderr.log"
	manifestFile  = "build.cbor"
	buildLockFile = ".build.lock"
)

// DefaultRoot returns the conventional cache root for application at
// version: the OS user cache directory joined with application and
// version. Upgrading to a new version therefore starts a fresh cache.
func DefaultRoot(application, version string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving user cache directory: %w", err)
	}
	return filepath.Join(base, application, version), nil
}

// Cache manages model directories under a root. A Cache holds no state
// besides the root path and is safe for concurrent use.
type Cache struct {
	root string
}

// New returns a Cache rooted at root. The root does not need to exist
// and is not created.
func New(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// ModelDirectory returns the directory for id. The directory may not
// exist; this does not touch the filesystem.
func (c *Cache) ModelDirectory(id modelid.Identity) string {
	return filepath.Join(c.root, modelsDir, id.Token())
}

// EnsureModelDirectory creates the directory for id and its parents if
// they do not exist and returns its path. Calling it for an existing
// directory is not an error and leaves its contents untouched.
func (c *Cache) EnsureModelDirectory(id modelid.Identity) (string, error) {
	directory := c.ModelDirectory(id)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return "", fmt.Errorf("creating model directory for %s: %w", id, err)
	}
	return directory, nil
}

// existingModelDirectory returns the directory for id, or an error
// matching ErrNotFound if it does not exist.
func (c *Cache) existingModelDirectory(id modelid.Identity) (string, error) {
	directory := c.ModelDirectory(id)
	info, err := os.Stat(directory)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("directory for %s at %s: %w", id, directory, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("checking model directory for %s: %w", id, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("model path %s for %s is not a directory", directory, id)
	}
	return directory, nil
}

// WriteBuildLog replaces the native compiler output stored for id. The
// model directory must already exist; otherwise the error matches
// ErrNotFound.
func (c *Cache) WriteBuildLog(id modelid.Identity, text string) error {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(directory, buildLogFile, []byte(text)); err != nil {
		return fmt.Errorf("writing build log for %s: %w", id, err)
	}
	return nil
}

// ReadBuildLog returns the native compiler output stored for id,
// verbatim. The error matches ErrNotFound if the model directory or the
// log is absent.
func (c *Cache) ReadBuildLog(id modelid.Identity) (string, error) {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(directory, buildLogFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("build log for %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading build log for %s: %w", id, err)
	}
	return string(data), nil
}

// WriteGeneratedSource stores the transpiler's C++ output for id under
// filename and returns the full path. The model directory must exist.
func (c *Cache) WriteGeneratedSource(id modelid.Identity, filename, code string) (string, error) {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(directory, filename, []byte(code)); err != nil {
		return "", fmt.Errorf("writing generated source for %s: %w", id, err)
	}
	return filepath.Join(directory, filename), nil
}

// LocateModuleFile returns the path of the loadable module built for
// id. The manifest names the module exactly; directories without a
// manifest fall back to the first file, in lexical order, whose name
// ends in one of the platform's extension suffixes. The error matches
// ErrNotFound if the directory is absent or holds no module.
func (c *Cache) LocateModuleFile(id modelid.Identity) (string, error) {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return "", err
	}

	manifest, err := c.ReadManifest(id)
	switch {
	case err == nil && manifest.ModuleFile != "":
		path := filepath.Join(directory, manifest.ModuleFile)
		if _, statErr := os.Stat(path); statErr == nil {
			return path, nil
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return "", fmt.Errorf("checking module file for %s: %w", id, statErr)
		}
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", err
	}

	// os.ReadDir sorts by filename, so the scan is deterministic.
	entries, err := os.ReadDir(directory)
	if err != nil {
		return "", fmt.Errorf("listing model directory for %s: %w", id, err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() && HasExtensionSuffix(entry.Name()) {
			return filepath.Join(directory, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no module for %s in %s: %w", id, directory, ErrNotFound)
}

// ListModels returns the identities of every model directory in the
// cache, sorted by token. A cache root that does not exist yet holds no
// models.
func (c *Cache) ListModels() ([]modelid.Identity, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, modelsDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}

	var identities []modelid.Identity
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := modelid.Parse(modelid.Prefix + entry.Name())
		if err != nil {
			// Not a model directory (stray file or foreign tooling).
			continue
		}
		identities = append(identities, id)
	}
	return identities, nil
}

// DeleteModel removes the directory for id and everything in it,
// including fits stored beneath it. The error matches ErrNotFound if
// the directory does not exist.
func (c *Cache) DeleteModel(id modelid.Identity) error {
	directory, err := c.existingModelDirectory(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(directory); err != nil {
		return fmt.Errorf("deleting model directory for %s: %w", id, err)
	}
	return nil
}
