// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/modelcache/cmd/modelcache/cli"
	"github.com/bureau-foundation/modelcache/lib/build"
	"github.com/bureau-foundation/modelcache/lib/config"
	"github.com/bureau-foundation/modelcache/lib/fitstore"
	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
	"github.com/bureau-foundation/modelcache/lib/stanc"
	"github.com/bureau-foundation/modelcache/lib/toolchain"
	"github.com/bureau-foundation/modelcache/lib/version"
)

// app carries the process streams and the --config value shared by
// every subcommand.
type app struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string

	// newLogger is replaced in tests.
	newLogger func() *slog.Logger
}

func newApp(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		ctx:       ctx,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		newLogger: cli.NewCommandLogger,
	}
}

func (a *app) rootCommand() *cli.Command {
	return &cli.Command{
		Name:       "modelcache",
		Summary:    "Build and cache compiled models",
		HelpOutput: a.stderr,
		Description: `Compile modeling-language programs into native extension modules and
cache them by identity.

A model's identity is derived from its source text and the running
environment (tool version, platform, Go runtime, executable path), so a
change to any of them yields a fresh build. Artifacts live under
<cache root>/models/<token>; fits are stored gzip-compressed alongside.

Configuration is read from --config or MODELCACHE_CONFIG; without
either, built-in defaults are used.`,
		Subcommands: []*cli.Command{
			a.idCommand(),
			a.buildCommand(),
			a.logCommand(),
			a.locateCommand(),
			a.loadCommand(),
			a.listCommand(),
			a.deleteCommand(),
			a.fitCommand(),
			a.versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Build a model and print its identity",
				Command:     "modelcache build eight_schools.stan",
			},
			{
				Description: "Show the compiler output of a cached build",
				Command:     "modelcache log models/abcdefgh",
			},
			{
				Description: "Store a fit blob for a model",
				Command:     "modelcache fit put models/abcdefgh/fits/run1 draws.bin",
			},
		},
	}
}

// flagSet returns a flag set carrying the shared --config flag.
func (a *app) flagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
	return flagSet
}

// loadConfig resolves and validates the configuration.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(a.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (a *app) openCache() (*modelcache.Cache, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return modelcache.New(cfg.Cache.Root), nil
}

func (a *app) openFitStore() (*fitstore.Store, error) {
	cache, err := a.openCache()
	if err != nil {
		return nil, err
	}
	return fitstore.New(cache.Root()), nil
}

// newCoordinator wires the configured tools into a build coordinator.
func (a *app) newCoordinator(cfg *config.Config, logger *slog.Logger) (*build.Coordinator, error) {
	stancPath, err := config.ToolPath(cfg.Toolchain.Stanc)
	if err != nil {
		return nil, fmt.Errorf("locating transpiler: %w", err)
	}
	cxxPath, err := config.ToolPath(cfg.Toolchain.CXX)
	if err != nil {
		return nil, fmt.Errorf("locating C++ compiler: %w", err)
	}
	lockTimeout, err := cfg.Build.LockTimeoutDuration()
	if err != nil {
		return nil, err
	}

	return build.New(build.Config{
		Cache:               modelcache.New(cfg.Cache.Root),
		Transpiler:          &stanc.Command{Binary: stancPath, Args: cfg.Toolchain.StancArgs},
		Toolchain:           &toolchain.CXX{Compiler: cxxPath, Logger: logger},
		PackageDir:          cfg.Toolchain.PackageDir,
		Environment:         modelid.CurrentEnvironment(),
		DefaultCompileArgs:  cfg.Toolchain.CompileArgs,
		MaxConcurrentBuilds: cfg.Build.MaxConcurrent,
		LockTimeout:         lockTimeout,
		Logger:              logger,
	})
}

// readInput reads a named file, or stdin for "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (a *app) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintf(a.stdout, "modelcache %s\n", version.Full())
			return nil
		},
	}
}
