// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/modelcache/lib/clock"
	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
	"github.com/bureau-foundation/modelcache/lib/stanc"
	"github.com/bureau-foundation/modelcache/lib/toolchain"
)

// State is a step of one build.
type State int

const (
	StatePending State = iota
	StateTranspiling
	StateCompiling
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTranspiling:
		return "transpiling"
	case StateCompiling:
		return "compiling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// DefaultCompileArgs are used when a build request passes none.
var DefaultCompileArgs = []string{"-O3", "-std=c++14"}

// Config configures a Coordinator.
type Config struct {
	// Cache is the artifact cache builds are written into. Required.
	Cache *modelcache.Cache

	// Transpiler converts program source into C++. Required.
	Transpiler stanc.Transpiler

	// Toolchain compiles and links the generated code. Required.
	Toolchain toolchain.Toolchain

	// PackageDir holds the bundled headers, libraries and the
	// precompiled stan_services object. Required.
	PackageDir string

	// Environment is the fingerprint used for identities. The zero
	// value means modelid.CurrentEnvironment().
	Environment modelid.Environment

	// DefaultCompileArgs replaces the package default compile flags.
	DefaultCompileArgs []string

	// ModuleSuffix is the module filename suffix the toolchain
	// produces. Defaults to the platform's primary extension suffix.
	ModuleSuffix string

	// MaxConcurrentBuilds bounds simultaneous native builds. Defaults
	// to 1.
	MaxConcurrentBuilds int

	// LockTimeout bounds how long Ensure waits for another process's
	// build lock. Zero means wait indefinitely.
	LockTimeout time.Duration

	// LockPollInterval is the retry interval while the build lock is
	// held elsewhere. Defaults to 500ms.
	LockPollInterval time.Duration

	// OnStateChange, if set, is called on every state transition. It
	// may be called from several goroutines at once.
	OnStateChange func(modelid.Identity, State)

	Clock  clock.Clock
	Logger *slog.Logger
}

// Result describes a built (or already cached) model.
type Result struct {
	Identity modelid.Identity

	// CompilerOutput is the native toolchain's captured text. Non-fatal
	// warnings appear here on success.
	CompilerOutput string

	// TranspilerWarnings is the transpiler's warning text.
	TranspilerWarnings string

	// Cached is true when Ensure found a committed build and no build
	// ran.
	Cached bool
}

// Coordinator runs model builds. It is safe for concurrent use.
type Coordinator struct {
	cache        *modelcache.Cache
	transpiler   stanc.Transpiler
	toolchain    toolchain.Toolchain
	packageDir   string
	environment  modelid.Environment
	compileArgs  []string
	moduleSuffix string
	lockTimeout  time.Duration
	lockPoll     time.Duration
	onState      func(modelid.Identity, State)
	clock        clock.Clock
	logger       *slog.Logger

	workers  *semaphore.Weighted
	inFlight singleflight.Group
}

// New validates config and returns a Coordinator.
func New(config Config) (*Coordinator, error) {
	var errs []error
	if config.Cache == nil {
		errs = append(errs, errors.New("cache is required"))
	}
	if config.Transpiler == nil {
		errs = append(errs, errors.New("transpiler is required"))
	}
	if config.Toolchain == nil {
		errs = append(errs, errors.New("toolchain is required"))
	}
	if config.PackageDir == "" {
		errs = append(errs, errors.New("package directory is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid build configuration: %w", errors.Join(errs...))
	}

	coordinator := &Coordinator{
		cache:        config.Cache,
		transpiler:   config.Transpiler,
		toolchain:    config.Toolchain,
		packageDir:   config.PackageDir,
		environment:  config.Environment,
		compileArgs:  config.DefaultCompileArgs,
		moduleSuffix: config.ModuleSuffix,
		lockTimeout:  config.LockTimeout,
		lockPoll:     config.LockPollInterval,
		onState:      config.OnStateChange,
		clock:        config.Clock,
		logger:       config.Logger,
	}
	if coordinator.environment == (modelid.Environment{}) {
		coordinator.environment = modelid.CurrentEnvironment()
	}
	if coordinator.compileArgs == nil {
		coordinator.compileArgs = DefaultCompileArgs
	}
	if coordinator.moduleSuffix == "" {
		coordinator.moduleSuffix = modelcache.ExtensionSuffixes()[0]
	}
	if coordinator.lockPoll <= 0 {
		coordinator.lockPoll = 500 * time.Millisecond
	}
	if coordinator.clock == nil {
		coordinator.clock = clock.Real()
	}
	if coordinator.logger == nil {
		coordinator.logger = slog.Default()
	}
	workers := config.MaxConcurrentBuilds
	if workers <= 0 {
		workers = 1
	}
	coordinator.workers = semaphore.NewWeighted(int64(workers))
	return coordinator, nil
}

// Identity returns the identity source builds under.
func (c *Coordinator) Identity(source string) modelid.Identity {
	return c.environment.Derive(source)
}

// internalName is the C++ model name and generated source stem.
func internalName(id modelid.Identity) string {
	return "model_" + id.Token()
}

// moduleName is the module filename stem. The module registers a fixed
// name internally, so the filename is the only per-model part.
func moduleName(id modelid.Identity) string {
	return "stan_services_" + internalName(id)
}

func (c *Coordinator) setState(id modelid.Identity, state State) {
	if c.onState != nil {
		c.onState(id, state)
	}
}

// Build transpiles and compiles source into its model directory. It
// always builds; see Ensure for the cache-aware entry point. A nil
// extraCompileArgs selects the default flags.
//
// Transpiler rejections return the *stanc.CompilationError unchanged.
// Native failures return the *toolchain.BuildError unchanged and leave
// the model directory in place for the next attempt to overwrite.
func (c *Coordinator) Build(ctx context.Context, source string, extraCompileArgs []string) (*Result, error) {
	return c.build(ctx, source, extraCompileArgs, false)
}

// build runs one build. With persistLog the compiler output is stored
// as the build log before the manifest, which commits the build.
func (c *Coordinator) build(ctx context.Context, source string, extraCompileArgs []string, persistLog bool) (*Result, error) {
	id := c.Identity(source)
	buildID := uuid.NewString()
	logger := c.logger.With("model", id.String(), "build_id", buildID)
	c.setState(id, StatePending)

	directory, err := c.cache.EnsureModelDirectory(id)
	if err != nil {
		c.setState(id, StateFailed)
		return nil, err
	}

	c.setState(id, StateTranspiling)
	name := internalName(id)
	output, err := c.transpiler.Transpile(ctx, source, name)
	if err != nil {
		c.setState(id, StateFailed)
		logger.Info("transpiler rejected model", "error", err)
		return nil, err
	}

	sourcePath := filepath.Join(directory, name+".cpp")
	if _, err := c.cache.WriteGeneratedSource(id, name+".cpp", output.Code); err != nil {
		logger.Warn("storing generated source failed", "error", err)
	}

	extension := c.extension(id, directory, sourcePath, extraCompileArgs)
	manifest := &modelcache.Manifest{
		Identity:           id,
		BuildID:            buildID,
		ModuleFile:         extension.Name + c.moduleSuffix,
		GeneratedSource:    name + ".cpp",
		TranspilerWarnings: output.Warnings,
		Version:            c.environment.Version,
		Platform:           c.environment.Platform,
	}

	c.setState(id, StateCompiling)
	compilerOutput, err := c.compile(ctx, logger, extension, directory, manifest, persistLog)
	if err != nil {
		c.setState(id, StateFailed)
		return nil, err
	}

	c.setState(id, StateSucceeded)
	return &Result{
		Identity:           id,
		CompilerOutput:     compilerOutput,
		TranspilerWarnings: output.Warnings,
	}, nil
}

type nativeResult struct {
	output string
	err    error
}

// compile runs the native build on a worker and waits for it. The
// worker ignores cancellation of ctx: once dispatched, the build, its
// log and its manifest writes run to completion. The manifest is
// written last; a module without one is not a finished build.
func (c *Coordinator) compile(ctx context.Context, logger *slog.Logger, extension toolchain.Extension, directory string, manifest *modelcache.Manifest, persistLog bool) (string, error) {
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for a build worker for %s: %w", manifest.Identity, err)
	}

	done := make(chan nativeResult, 1)
	workerContext := context.WithoutCancel(ctx)
	go func() {
		defer c.workers.Release(1)
		started := c.clock.Now()
		output, err := c.toolchain.Build(workerContext, []toolchain.Extension{extension}, directory)
		if err != nil {
			logger.Info("native build failed", "duration", c.clock.Now().Sub(started))
			done <- nativeResult{output: output, err: err}
			return
		}
		if persistLog {
			if err := c.cache.WriteBuildLog(manifest.Identity, output); err != nil {
				done <- nativeResult{output: output, err: err}
				return
			}
		}
		manifest.BuiltAt = c.clock.Now()
		if err := c.cache.WriteManifest(manifest); err != nil {
			logger.Warn("writing build manifest failed", "error", err)
		}
		logger.Info("native build finished", "duration", manifest.BuiltAt.Sub(started))
		done <- nativeResult{output: output}
	}()

	select {
	case result := <-done:
		return result.output, result.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for native build of %s: %w", manifest.Identity, ctx.Err())
	}
}

// Ensure returns the build result for source, building it only if no
// committed build is cached. Concurrent calls for one identity share a single
// build; on success the compiler output is persisted as the build log.
// Cancelling ctx abandons this caller's wait without affecting others.
func (c *Coordinator) Ensure(ctx context.Context, source string, extraCompileArgs []string) (*Result, error) {
	id := c.Identity(source)

	result, err := c.cached(id)
	if err != nil || result != nil {
		return result, err
	}

	// The shared build must outlive any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	pending := c.inFlight.DoChan(string(id), func() (any, error) {
		return c.buildLocked(shared, id, source, extraCompileArgs, false)
	})

	select {
	case outcome := <-pending:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		copied := *outcome.Val.(*Result)
		return &copied, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for build of %s: %w", id, ctx.Err())
	}
}

// Rebuild builds source even when it is cached, replacing the module,
// log and manifest. It holds the same build lock as Ensure, so it never
// overlaps another build of the identity sharing the cache root.
func (c *Coordinator) Rebuild(ctx context.Context, source string, extraCompileArgs []string) (*Result, error) {
	return c.buildLocked(ctx, c.Identity(source), source, extraCompileArgs, true)
}

// buildLocked holds the cross-process build lock for id and builds.
// Unless force is set it first re-checks the cache.
func (c *Coordinator) buildLocked(ctx context.Context, id modelid.Identity, source string, extraCompileArgs []string, force bool) (*Result, error) {
	lockContext := ctx
	if c.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockContext, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}
	lock, err := c.cache.LockBuild(lockContext, id, c.clock, c.lockPoll)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn("releasing build lock failed", "model", id.String(), "error", err)
		}
	}()

	if !force {
		// Another process may have finished while this one waited.
		result, err := c.cached(id)
		if err != nil || result != nil {
			return result, err
		}
	}
	return c.build(ctx, source, extraCompileArgs, true)
}

// cached returns the stored result for id, or nil if no committed build
// exists. The manifest is the commit marker: a module file renamed into
// place by a build that has not yet written its log and manifest does
// not count.
func (c *Coordinator) cached(id modelid.Identity) (*Result, error) {
	manifest, err := c.cache.ReadManifest(id)
	if err != nil {
		if errors.Is(err, modelcache.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if _, err := c.cache.LocateModuleFile(id); err != nil {
		if errors.Is(err, modelcache.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	result := &Result{
		Identity:           id,
		TranspilerWarnings: manifest.TranspilerWarnings,
		Cached:             true,
	}

	compilerOutput, err := c.cache.ReadBuildLog(id)
	switch {
	case err == nil:
		result.CompilerOutput = compilerOutput
	case !errors.Is(err, modelcache.ErrNotFound):
		return nil, err
	}
	return result, nil
}

// macros are the preprocessor definitions every model is built with.
var macros = []toolchain.Macro{
	{Name: "BOOST_DISABLE_ASSERTS"},
	{Name: "BOOST_PHOENIX_NO_VARIADIC_EXPRESSION"},
	{Name: "STAN_THREADS"},
	// Required by stan math for the reentrant std::lgamma.
	{Name: "_REENTRANT"},
	// Matches the ABI of the bundled libraries built on manylinux2014.
	{Name: "_GLIBCXX_USE_CXX11_ABI", Value: "0"},
}

// libraries returns the shared libraries linked into every module.
func libraries(goos string) []string {
	linked := []string{"sundials_cvodes", "sundials_idas", "sundials_nvecserial", "tbb"}
	if goos == "darwin" {
		linked = append(linked, "tbbmalloc", "tbbmalloc_proxy")
	}
	return linked
}

// extension describes the native build of one model. The library
// directory is embedded as an rpath so the module finds its shared
// dependencies without LD_LIBRARY_PATH.
func (c *Coordinator) extension(id modelid.Identity, directory, sourcePath string, extraCompileArgs []string) toolchain.Extension {
	compileArgs := extraCompileArgs
	if compileArgs == nil {
		compileArgs = c.compileArgs
	}
	include := filepath.Join(c.packageDir, "include")
	libraryDir := filepath.Join(c.packageDir, "lib")

	return toolchain.Extension{
		Name:    moduleName(id),
		Sources: []string{sourcePath},
		Macros:  macros,
		IncludeDirs: []string{
			c.packageDir,
			directory,
			include,
			filepath.Join(include, "lib", "eigen_3.3.7"),
			filepath.Join(include, "lib", "boost_1.72.0"),
			filepath.Join(include, "lib", "sundials_5.2.0", "include"),
			filepath.Join(include, "lib", "tbb_2019_U8", "include"),
		},
		LibraryDirs:      []string{libraryDir},
		Libraries:        libraries(runtime.GOOS),
		ExtraCompileArgs: compileArgs,
		ExtraLinkArgs:    []string{"-Wl,-rpath," + libraryDir},
		ExtraObjects:     []string{filepath.Join(c.packageDir, "stan_services.o")},
	}
}
