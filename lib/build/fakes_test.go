// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bureau-foundation/modelcache/lib/clock"
	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
	"github.com/bureau-foundation/modelcache/lib/stanc"
	"github.com/bureau-foundation/modelcache/lib/toolchain"
)

// fakeTranspiler returns canned output or a canned rejection.
type fakeTranspiler struct {
	warnings string
	err      error
	calls    atomic.Int32
}

func (f *fakeTranspiler) Transpile(_ context.Context, source, name string) (*stanc.Output, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &stanc.Output{
		Code:     "// generated " + name + "\n",
		Warnings: f.warnings,
	}, nil
}

// fakeToolchain writes an empty module file for each extension. When
// release is non-nil, Build blocks on it after closing started. With
// linkFirst the modules are in place before Build blocks.
type fakeToolchain struct {
	output    string
	err       error
	started   chan struct{}
	release   chan struct{}
	linkFirst bool

	builds     atomic.Int32
	startOnce  sync.Once
	mu         sync.Mutex
	extensions []toolchain.Extension
}

func newBlockingToolchain(output string) *fakeToolchain {
	return &fakeToolchain{
		output:  output,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeToolchain) Build(_ context.Context, extensions []toolchain.Extension, destination string) (string, error) {
	f.builds.Add(1)
	f.mu.Lock()
	f.extensions = append(f.extensions, extensions...)
	f.mu.Unlock()

	if f.linkFirst {
		if err := link(extensions, destination); err != nil {
			return "", err
		}
	}
	if f.started != nil {
		f.startOnce.Do(func() { close(f.started) })
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return f.output, f.err
	}
	if !f.linkFirst {
		if err := link(extensions, destination); err != nil {
			return "", err
		}
	}
	return f.output, nil
}

func link(extensions []toolchain.Extension, destination string) error {
	for _, extension := range extensions {
		path := filepath.Join(destination, extension.Name+".so")
		if err := os.WriteFile(path, []byte("module"), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeToolchain) recorded() []toolchain.Extension {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolchain.Extension(nil), f.extensions...)
}

// stateRecorder collects transitions reported through OnStateChange.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(_ modelid.Identity, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func testEnvironment() modelid.Environment {
	return modelid.Environment{
		Version:        "1.0.0",
		Platform:       "linux/amd64",
		PointerWidth:   "9223372036854775807",
		RuntimeVersion: "go1.25.6",
		Executable:     "/usr/bin/modelcache",
	}
}

type testSetup struct {
	cache       *modelcache.Cache
	transpiler  *fakeTranspiler
	toolchain   *fakeToolchain
	states      *stateRecorder
	clock       *clock.FakeClock
	coordinator *Coordinator
}

func newTestSetup(t *testing.T, transpiler *fakeTranspiler, tools *fakeToolchain) *testSetup {
	t.Helper()
	setup := &testSetup{
		cache:      modelcache.New(t.TempDir()),
		transpiler: transpiler,
		toolchain:  tools,
		states:     &stateRecorder{},
		clock:      clock.Fake(testTime),
	}
	coordinator, err := New(Config{
		Cache:         setup.cache,
		Transpiler:    transpiler,
		Toolchain:     tools,
		PackageDir:    "/opt/stan",
		Environment:   testEnvironment(),
		ModuleSuffix:  ".so",
		OnStateChange: setup.states.record,
		Clock:         setup.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	setup.coordinator = coordinator
	return setup
}
