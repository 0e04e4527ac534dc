// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/modelcache/cmd/modelcache/cli"
	"github.com/bureau-foundation/modelcache/lib/loader"
	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
	"github.com/bureau-foundation/modelcache/lib/stanc"
	"github.com/bureau-foundation/modelcache/lib/toolchain"
)

func (a *app) idCommand() *cli.Command {
	const usage = "modelcache id <file>"
	return &cli.Command{
		Name:    "id",
		Summary: "Print the identity a program builds under",
		Usage:   usage,
		Description: `Print the model identity of a program without building it.

The identity depends on the running environment as well as the source,
so the same file can have different identities under different
modelcache binaries. Use "-" to read the program from stdin.`,
		Flags: func() *pflag.FlagSet { return a.flagSet("id") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			source, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, modelid.Derive(string(source)))
			return nil
		},
	}
}

func (a *app) buildCommand() *cli.Command {
	const usage = "modelcache build <file> [flags]"
	var (
		compileArgs []string
		force       bool
	)
	return &cli.Command{
		Name:    "build",
		Summary: "Build a program into a cached extension module",
		Usage:   usage,
		Description: `Transpile and compile a program, printing its identity on success.

If a module for the program's identity already exists it is reused and
no build runs, unless --force is given. Transpiler warnings and compiler
output are written to stderr; the compiler output is also stored as the
model's build log.

A program the transpiler rejects exits with status 2 and its
diagnostics on stderr.`,
		Examples: []cli.Example{
			{
				Description: "Build with default flags",
				Command:     "modelcache build eight_schools.stan",
			},
			{
				Description: "Build unoptimized with debug info",
				Command:     "modelcache build eight_schools.stan --compile-arg=-O0 --compile-arg=-g",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("build")
			flagSet.StringArrayVar(&compileArgs, "compile-arg", nil, "compiler flag replacing the defaults (repeatable)")
			flagSet.BoolVarP(&force, "force", "f", false, "rebuild even if a module is cached")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			source, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := a.newLogger().With("command", "build")
			coordinator, err := a.newCoordinator(cfg, logger)
			if err != nil {
				return err
			}

			var extra []string
			if len(compileArgs) > 0 {
				extra = compileArgs
			}

			buildModel := coordinator.Ensure
			if force {
				buildModel = coordinator.Rebuild
			}
			result, err := buildModel(a.ctx, string(source), extra)

			var compileErr *stanc.CompilationError
			var buildErr *toolchain.BuildError
			switch {
			case errors.As(err, &compileErr):
				fmt.Fprintln(a.stderr, compileErr.Message)
				return &cli.ExitError{Code: 2}
			case errors.As(err, &buildErr):
				fmt.Fprintln(a.stderr, buildErr.Output)
				return &cli.ExitError{Code: 1}
			case err != nil:
				return err
			}

			if result.TranspilerWarnings != "" {
				fmt.Fprint(a.stderr, result.TranspilerWarnings)
			}
			if result.CompilerOutput != "" {
				fmt.Fprint(a.stderr, result.CompilerOutput)
			}
			logger.Info("model ready", "model", result.Identity.String(), "cached", result.Cached)
			fmt.Fprintln(a.stdout, result.Identity)
			return nil
		},
	}
}

// parseModel parses a model identity argument, accepting either the
// full "models/<token>" form or the bare token.
func parseModel(arg string) (modelid.Identity, error) {
	if id, err := modelid.Parse(arg); err == nil {
		return id, nil
	}
	return modelid.Parse(modelid.Prefix + arg)
}

// notFound prints a short message and returns exit status 1 for a
// missing cache entry; other errors pass through.
func (a *app) notFound(err error, what string) error {
	if errors.Is(err, modelcache.ErrNotFound) {
		fmt.Fprintf(a.stderr, "%s not found\n", what)
		return &cli.ExitError{Code: 1}
	}
	return err
}

func (a *app) logCommand() *cli.Command {
	const usage = "modelcache log <model>"
	return &cli.Command{
		Name:    "log",
		Summary: "Print the compiler output of a cached build",
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return a.flagSet("log") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			id, err := parseModel(args[0])
			if err != nil {
				return err
			}
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			text, err := cache.ReadBuildLog(id)
			if err != nil {
				return a.notFound(err, "build log for "+id.String())
			}
			fmt.Fprint(a.stdout, text)
			return nil
		},
	}
}

func (a *app) locateCommand() *cli.Command {
	const usage = "modelcache locate <model>"
	return &cli.Command{
		Name:    "locate",
		Summary: "Print the path of a model's extension module",
		Usage:   usage,
		Description: `Print the path of a model's compiled extension module.

Exits with status 1 when the model has not been built.`,
		Flags: func() *pflag.FlagSet { return a.flagSet("locate") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			id, err := parseModel(args[0])
			if err != nil {
				return err
			}
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			path, err := cache.LocateModuleFile(id)
			if err != nil {
				return a.notFound(err, "module for "+id.String())
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
}

func (a *app) loadCommand() *cli.Command {
	const usage = "modelcache load <model>"
	return &cli.Command{
		Name:    "load",
		Summary: "Check that a built module opens and exports its entry point",
		Usage:   usage,
		Description: `Open a model's compiled extension module with the dynamic loader and
resolve its ` + loader.ServicesSymbol + ` entry symbol, then print the module path.

Exits with status 1 when the model has not been built. A module that
fails to open or lacks the entry symbol is reported as an error.`,
		Flags: func() *pflag.FlagSet { return a.flagSet("load") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			id, err := parseModel(args[0])
			if err != nil {
				return err
			}
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			logger := a.newLogger().With("command", "load")
			modules := loader.New(cache, nil, logger)
			module, err := modules.Load(id)
			if err != nil {
				return a.notFound(err, "module for "+id.String())
			}
			fmt.Fprintln(a.stdout, module.Path)
			return modules.Close()
		},
	}
}

func (a *app) listCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List cached models",
		Usage:   "modelcache list [flags]",
		Flags:   func() *pflag.FlagSet { return a.flagSet("list") },
		Run: func(args []string) error {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			identities, err := cache.ListModels()
			if err != nil {
				return err
			}
			for _, id := range identities {
				fmt.Fprintln(a.stdout, id)
			}
			return nil
		},
	}
}

func (a *app) deleteCommand() *cli.Command {
	const usage = "modelcache delete <model>"
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a cached model and its fits",
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return a.flagSet("delete") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			id, err := parseModel(args[0])
			if err != nil {
				return err
			}
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			if err := cache.DeleteModel(id); err != nil {
				return a.notFound(err, id.String())
			}
			return nil
		},
	}
}
