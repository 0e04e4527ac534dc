// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fitstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/bureau-foundation/modelcache/lib/modelcache"
)

// fileSuffix is appended to the final segment of a fit name.
const fileSuffix = ".dat.gz"

// ErrInvalidName reports a fit name that cannot be mapped safely onto
// the store root.
var ErrInvalidName = errors.New("invalid fit name")

// Store reads and writes fit blobs under a root directory. It holds no
// state besides the root and is safe for concurrent use.
type Store struct {
	root string
}

// New returns a Store rooted at root. Pass the model cache root so that
// fits nest under their models.
func New(root string) *Store {
	return &Store{root: root}
}

// Path returns the file that holds the fit called name. The file may
// not exist.
func (s *Store) Path(name string) (string, error) {
	segments, err := splitName(name)
	if err != nil {
		return "", err
	}
	last := len(segments) - 1
	segments[last] += fileSuffix
	return filepath.Join(append([]string{s.root}, segments...)...), nil
}

// splitName validates name and returns its segments. Empty, "." and
// ".." segments are rejected so that no name escapes the root.
func splitName(name string) ([]string, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	segments := strings.Split(name, "/")
	for _, segment := range segments {
		switch {
		case segment == "", segment == ".", segment == "..":
			return nil, fmt.Errorf("%w: %q has segment %q", ErrInvalidName, name, segment)
		case strings.ContainsRune(segment, filepath.Separator), strings.ContainsRune(segment, 0):
			return nil, fmt.Errorf("%w: %q has an unsupported character in %q", ErrInvalidName, name, segment)
		}
	}
	return segments, nil
}

// Put compresses blob and stores it as the fit called name, creating
// parent directories as needed and replacing any previous blob.
func (s *Store) Put(name string, blob []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating directory for fit %s: %w", name, err)
	}

	tmpFile, err := os.CreateTemp(directory, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for fit %s: %w", name, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	writer := gzip.NewWriter(tmpFile)
	if _, err := writer.Write(blob); err != nil {
		tmpFile.Close()
		return fmt.Errorf("compressing fit %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("finishing gzip stream for fit %s: %w", name, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing fit %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming fit %s into place: %w", name, err)
	}

	success = true
	return nil
}

// Get returns the bytes stored as the fit called name. The error
// matches modelcache.ErrNotFound if no such fit exists.
func (s *Store) Get(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("fit %s: %w", name, modelcache.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("opening fit %s: %w", name, err)
	}
	defer file.Close()

	reader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("reading gzip header of fit %s: %w", name, err)
	}
	defer reader.Close()

	var blob bytes.Buffer
	if _, err := io.Copy(&blob, reader); err != nil {
		return nil, fmt.Errorf("decompressing fit %s: %w", name, err)
	}
	return blob.Bytes(), nil
}

// Delete removes the fit called name. The error matches
// modelcache.ErrNotFound if no such fit exists.
func (s *Store) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fit %s: %w", name, modelcache.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting fit %s: %w", name, err)
	}
	return nil
}
