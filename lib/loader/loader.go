// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

// ServicesSymbol is the entry point every model module exports.
const ServicesSymbol = "StanServices"

// ErrUnsupported is returned by NativeOpener on platforms without a
// dynamic loader.
var ErrUnsupported = errors.New("loading native modules is not supported on this platform")

// Handle is an opened module file. Lookup returns the address of an
// exported symbol.
type Handle interface {
	Lookup(symbol string) (uintptr, error)
	Close() error
}

// Opener opens module files.
type Opener interface {
	Open(path string) (Handle, error)
}

// Module is a loaded model.
type Module struct {
	Identity modelid.Identity
	Path     string

	handle Handle
}

// Lookup returns the address of an exported symbol of the module.
func (m *Module) Lookup(symbol string) (uintptr, error) {
	address, err := m.handle.Lookup(symbol)
	if err != nil {
		return 0, fmt.Errorf("looking up %s in %s: %w", symbol, m.Identity, err)
	}
	if address == 0 {
		return 0, fmt.Errorf("looking up %s in %s: symbol has no address", symbol, m.Identity)
	}
	return address, nil
}

// Services returns the address of the module's entry point.
func (m *Module) Services() (uintptr, error) {
	return m.Lookup(ServicesSymbol)
}

// Loader loads modules from a cache. It is safe for concurrent use.
type Loader struct {
	cache  *modelcache.Cache
	opener Opener
	logger *slog.Logger

	mu      sync.Mutex
	modules map[string]*Module
}

// New returns a Loader over cache. A nil opener selects NativeOpener;
// a nil logger selects slog.Default().
func New(cache *modelcache.Cache, opener Opener, logger *slog.Logger) *Loader {
	if opener == nil {
		opener = NativeOpener{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cache:   cache,
		opener:  opener,
		logger:  logger,
		modules: make(map[string]*Module),
	}
}

// Load opens the module built for id and verifies that it exports the
// entry symbol. It returns an error wrapping modelcache.ErrNotFound
// when no module has been built for id.
func (l *Loader) Load(id modelid.Identity) (*Module, error) {
	path, err := l.cache.LocateModuleFile(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if module, ok := l.modules[path]; ok {
		return module, nil
	}

	handle, err := l.opener.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening module for %s: %w", id, err)
	}
	module := &Module{Identity: id, Path: path, handle: handle}
	if _, err := module.Services(); err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			l.logger.Warn("closing rejected module failed", "path", path, "error", closeErr)
		}
		return nil, err
	}

	l.modules[path] = module
	l.logger.Info("model module loaded", "model", id.String(), "path", path)
	return module, nil
}

// Loaded returns the identities of modules opened so far.
func (l *Loader) Loaded() []modelid.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	identities := make([]modelid.Identity, 0, len(l.modules))
	for _, module := range l.modules {
		identities = append(identities, module.Identity)
	}
	return identities
}

// Close closes every module opened so far. Addresses obtained from
// them must not be used afterwards.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for path, module := range l.modules {
		if err := module.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", path, err))
		}
		delete(l.modules, path)
	}
	return errors.Join(errs...)
}
