// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command modelcache builds models into cached native extension modules
// and manages the fits stored alongside them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/modelcache/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output (like locate) return an
		// ExitError with the desired exit code. Don't print a redundant
		// "error:" line for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := newApp(ctx, os.Stdin, os.Stdout, os.Stderr)
	return application.rootCommand().Execute(os.Args[1:])
}
