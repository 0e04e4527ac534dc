// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/modelcache/cmd/modelcache/cli"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

func (a *app) fitCommand() *cli.Command {
	return &cli.Command{
		Name:    "fit",
		Summary: "Store, fetch and delete fit blobs",
		Description: `Manage fit blobs stored under the cache root.

Fit names are slash-separated paths such as models/<token>/fits/<name>.
Blobs are stored gzip-compressed at <root>/<name>.dat.gz.`,
		Subcommands: []*cli.Command{
			a.fitNameCommand(),
			a.fitPutCommand(),
			a.fitGetCommand(),
			a.fitDeleteCommand(),
		},
	}
}

func (a *app) fitNameCommand() *cli.Command {
	const usage = "modelcache fit name <model> <function> [key=value ...]"
	return &cli.Command{
		Name:    "name",
		Summary: "Derive the fit name for a model, function and arguments",
		Usage:   usage,
		Description: `Print the canonical fit name for running function on model with the
given arguments. Identical requests always map to the same name, so the
name can be used to look up a previously stored fit.`,
		Examples: []cli.Example{
			{
				Command: "modelcache fit name models/abcdefgh stan::services::sample::hmc_nuts_diag_e_adapt num_samples=1000 seed=7",
			},
		},
		Flags: func() *pflag.FlagSet { return a.flagSet("name") },
		Run: func(args []string) error {
			if len(args) < 2 {
				return cli.RequireArgs(args, 2, usage)
			}
			id, err := parseModel(args[0])
			if err != nil {
				return err
			}
			arguments := make(map[string]string, len(args)-2)
			for _, pair := range args[2:] {
				key, value, ok := strings.Cut(pair, "=")
				if !ok || key == "" {
					return fmt.Errorf("argument %q is not key=value", pair)
				}
				arguments[key] = value
			}
			name, err := modelid.DeriveFitName(id, args[1], arguments)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, name)
			return nil
		},
	}
}

func (a *app) fitPutCommand() *cli.Command {
	const usage = "modelcache fit put <name> <file>"
	return &cli.Command{
		Name:    "put",
		Summary: "Store a fit blob from a file or stdin",
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return a.flagSet("put") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 2, usage); err != nil {
				return err
			}
			blob, err := a.readInput(args[1])
			if err != nil {
				return err
			}
			store, err := a.openFitStore()
			if err != nil {
				return err
			}
			return store.Put(args[0], blob)
		},
	}
}

func (a *app) fitGetCommand() *cli.Command {
	const usage = "modelcache fit get <name> [flags]"
	var output string
	return &cli.Command{
		Name:    "get",
		Summary: "Fetch a stored fit blob",
		Usage:   usage,
		Description: `Write a stored fit blob to stdout or to --output.

Exits with status 1 when no fit is stored under the name.`,
		Flags: func() *pflag.FlagSet {
			flagSet := a.flagSet("get")
			flagSet.StringVarP(&output, "output", "o", "", "write to file instead of stdout")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			store, err := a.openFitStore()
			if err != nil {
				return err
			}
			blob, err := store.Get(args[0])
			if err != nil {
				return a.notFound(err, "fit "+args[0])
			}
			if output != "" {
				if err := os.WriteFile(output, blob, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", output, err)
				}
				return nil
			}
			_, err = a.stdout.Write(blob)
			return err
		},
	}
}

func (a *app) fitDeleteCommand() *cli.Command {
	const usage = "modelcache fit delete <name>"
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete a stored fit blob",
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return a.flagSet("delete") },
		Run: func(args []string) error {
			if err := cli.RequireArgs(args, 1, usage); err != nil {
				return err
			}
			store, err := a.openFitStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return a.notFound(err, "fit "+args[0])
			}
			return nil
		},
	}
}
