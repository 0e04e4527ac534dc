// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/modelcache/cmd/modelcache/cli"
	"github.com/bureau-foundation/modelcache/lib/config"
	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

// harness runs the command tree against in-memory streams and a
// temporary cache root.
type harness struct {
	t          *testing.T
	root       string
	configPath string
	stdout     bytes.Buffer
	stderr     bytes.Buffer
}

func newHarness(t *testing.T, extraConfig string) *harness {
	t.Helper()
	h := &harness{t: t, root: filepath.Join(t.TempDir(), "cache")}
	h.configPath = filepath.Join(t.TempDir(), "modelcache.yaml")
	content := "cache:\n  root: " + h.root + "\n" + extraConfig
	if err := os.WriteFile(h.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv(config.EnvironmentVariable, h.configPath)
	return h
}

// run executes args with stdin and returns the command error.
func (h *harness) run(stdin string, args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	application := newApp(context.Background(), strings.NewReader(stdin), &h.stdout, &h.stderr)
	application.newLogger = func() *slog.Logger {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return application.rootCommand().Execute(args)
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	if err := h.run(stdin, args...); err != nil {
		h.t.Fatalf("%v: %v\nstderr:\n%s", args, err, h.stderr.String())
	}
	return h.stdout.String()
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *cli.ExitError", err)
	}
	if exitErr.Code != code {
		t.Errorf("exit code = %d, want %d", exitErr.Code, code)
	}
}

func TestIDCommand(t *testing.T) {
	h := newHarness(t, "")
	source := "parameters { real y; } model { y ~ normal(0, 1); }"

	path := filepath.Join(t.TempDir(), "normal.stan")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	want := modelid.Derive(source).String() + "\n"
	if got := h.mustRun("", "id", path); got != want {
		t.Errorf("id %s = %q, want %q", path, got, want)
	}
	if got := h.mustRun(source, "id", "-"); got != want {
		t.Errorf("id - = %q, want %q", got, want)
	}
	if err := h.run("", "id"); err == nil {
		t.Error("id without a file succeeded")
	}
}

func TestFitCommands(t *testing.T) {
	h := newHarness(t, "")
	name := "models/abcdefgh/fits/run1"

	h.mustRun("draws-and-diagnostics", "fit", "put", name, "-")
	if got := h.mustRun("", "fit", "get", name); got != "draws-and-diagnostics" {
		t.Errorf("fit get = %q", got)
	}
	if _, err := os.Stat(filepath.Join(h.root, "models", "abcdefgh", "fits", "run1.dat.gz")); err != nil {
		t.Errorf("stored blob not at expected path: %v", err)
	}

	output := filepath.Join(t.TempDir(), "run1.bin")
	h.mustRun("", "fit", "get", name, "--output", output)
	data, err := os.ReadFile(output)
	if err != nil || string(data) != "draws-and-diagnostics" {
		t.Errorf("fit get --output wrote %q, %v", data, err)
	}

	h.mustRun("", "fit", "delete", name)
	requireExitCode(t, h.run("", "fit", "get", name), 1)
	if !strings.Contains(h.stderr.String(), "not found") {
		t.Errorf("stderr = %q, want not found message", h.stderr.String())
	}
	requireExitCode(t, h.run("", "fit", "delete", name), 1)
}

func TestFitPutRejectsInvalidName(t *testing.T) {
	h := newHarness(t, "")
	if err := h.run("blob", "fit", "put", "models/../escape", "-"); err == nil {
		t.Error("fit put with .. segment succeeded")
	}
}

func TestFitNameCommand(t *testing.T) {
	h := newHarness(t, "")
	first := h.mustRun("", "fit", "name", "models/abcdefgh", "sample", "seed=7", "num_samples=1000")
	second := h.mustRun("", "fit", "name", "abcdefgh", "sample", "num_samples=1000", "seed=7")
	if first != second {
		t.Errorf("argument order changed the fit name: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "models/abcdefgh/fits/") {
		t.Errorf("fit name = %q", first)
	}
	other := h.mustRun("", "fit", "name", "models/abcdefgh", "sample", "seed=8", "num_samples=1000")
	if other == first {
		t.Error("different arguments produced the same fit name")
	}
	if err := h.run("", "fit", "name", "models/abcdefgh", "sample", "novalue"); err == nil {
		t.Error("malformed argument accepted")
	}
}

func TestModelCommandsOnCache(t *testing.T) {
	h := newHarness(t, "")
	cache := modelcache.New(h.root)
	id := modelid.Derive("model {}")

	requireExitCode(t, h.run("", "locate", id.String()), 1)
	requireExitCode(t, h.run("", "log", id.String()), 1)
	requireExitCode(t, h.run("", "load", id.String()), 1)
	if got := h.mustRun("", "list"); got != "" {
		t.Errorf("list on empty cache = %q", got)
	}

	directory, err := cache.EnsureModelDirectory(id)
	if err != nil {
		t.Fatal(err)
	}
	module := filepath.Join(directory, "stan_services_model_"+id.Token()+".so")
	if err := os.WriteFile(module, []byte("module"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := cache.WriteBuildLog(id, "warning: something\n"); err != nil {
		t.Fatal(err)
	}

	if got := h.mustRun("", "locate", id.String()); got != module+"\n" {
		t.Errorf("locate = %q, want %q", got, module)
	}
	if got := h.mustRun("", "locate", id.Token()); got != module+"\n" {
		t.Errorf("locate by bare token = %q", got)
	}
	if got := h.mustRun("", "log", id.String()); got != "warning: something\n" {
		t.Errorf("log = %q", got)
	}
	// The placeholder is not a shared object; load reports it and the
	// process survives.
	if err := h.run("", "load", id.String()); err == nil {
		t.Error("load succeeded for a file that is not a shared object")
	}
	if got := h.mustRun("", "list"); got != id.String()+"\n" {
		t.Errorf("list = %q", got)
	}

	h.mustRun("", "delete", id.String())
	if got := h.mustRun("", "list"); got != "" {
		t.Errorf("list after delete = %q", got)
	}
	requireExitCode(t, h.run("", "delete", id.String()), 1)
}

func TestInvalidModelArgument(t *testing.T) {
	h := newHarness(t, "")
	if err := h.run("", "locate", "models/NOT-BASE32"); err == nil {
		t.Error("locate accepted a malformed identity")
	}
}

func TestExplicitConfigFlag(t *testing.T) {
	h := newHarness(t, "")
	other := filepath.Join(t.TempDir(), "other")
	otherConfig := filepath.Join(t.TempDir(), "other.yaml")
	if err := os.WriteFile(otherConfig, []byte("cache:\n  root: "+other+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.mustRun("blob", "fit", "put", "--config", otherConfig, "models/abcdefgh/fits/x", "-")
	if _, err := os.Stat(filepath.Join(other, "models", "abcdefgh", "fits", "x.dat.gz")); err != nil {
		t.Errorf("--config did not select the other cache root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.root, "models")); !os.IsNotExist(err) {
		t.Errorf("environment config root was written: %v", err)
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	h := newHarness(t, "build:\n  max_concurrent: 0\n")
	err := h.run("", "list")
	if err == nil || !strings.Contains(err.Error(), "build.max_concurrent") {
		t.Errorf("list with invalid config = %v, want validation error", err)
	}
}

func TestVersionCommand(t *testing.T) {
	h := newHarness(t, "")
	if got := h.mustRun("", "version"); !strings.HasPrefix(got, "modelcache ") {
		t.Errorf("version = %q", got)
	}
}

// TestCommandTreeHasSummaries walks the production command tree and
// checks that every command shows up meaningfully in help listings.
func TestCommandTreeHasSummaries(t *testing.T) {
	application := newApp(context.Background(), nil, io.Discard, io.Discard)
	walkCommands(application.rootCommand(), nil, func(command *cli.Command, path []string) {
		if command.Summary == "" {
			t.Errorf("%s: missing Summary", strings.Join(path, " "))
		}
		if command.Run == nil && len(command.Subcommands) == 0 {
			t.Errorf("%s: neither Run nor Subcommands", strings.Join(path, " "))
		}
	})
}

// walkCommands recursively visits every command in the tree,
// calling visit for each node with the accumulated command path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = command.Name
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}
