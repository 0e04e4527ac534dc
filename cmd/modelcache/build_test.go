// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/modelid"
)

const fakeStanc = `#!/bin/sh
for arg; do
	case "$arg" in
		--name=*) name="${arg#--name=}" ;;
		--o=*) out="${arg#--o=}" ;;
		*) src="$arg" ;;
	esac
done
if grep -q 'model y' "$src"; then
	echo "Syntax error in '$src', line 1, column 28 to column 29, parsing error:" >&2
	exit 1
fi
if grep -q '1/5' "$src"; then
	echo "Info: Found int division at '$src', line 1, column 41 to column 44:" >&2
fi
printf 'namespace %s_namespace {}\n' "$name" > "$out"
`

// fakeCompiler writes the file named after -o and reports one warning
// per compile step.
const fakeCompiler = `#!/bin/sh
out=""
prev=""
for arg; do
	if [ "$prev" = "-o" ]; then out="$arg"; fi
	prev="$arg"
done
case "$*" in
	*" -c "*) echo "warning: unused variable 'lp_accum__'" >&2 ;;
esac
: > "$out"
`

func newBuildHarness(t *testing.T) *harness {
	t.Helper()
	tools := t.TempDir()
	stancPath := filepath.Join(tools, "stanc")
	compilerPath := filepath.Join(tools, "c++")
	if err := os.WriteFile(stancPath, []byte(fakeStanc), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(compilerPath, []byte(fakeCompiler), 0o755); err != nil {
		t.Fatal(err)
	}
	return newHarness(t, "toolchain:\n"+
		"  stanc: "+stancPath+"\n"+
		"  cxx: "+compilerPath+"\n"+
		"  package_dir: "+t.TempDir()+"\n")
}

func writeProgram(t *testing.T, source string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.stan")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildCommand(t *testing.T) {
	h := newBuildHarness(t)
	source := "parameters {real y;} model {y ~ normal(0, 1/5);}"
	program := writeProgram(t, source)
	id := modelid.Derive(source)

	if got := h.mustRun("", "build", program); got != id.String()+"\n" {
		t.Fatalf("build printed %q, want %s", got, id)
	}
	if !strings.Contains(h.stderr.String(), "int division") {
		t.Errorf("stderr = %q, want transpiler warnings", h.stderr.String())
	}

	module := strings.TrimSpace(h.mustRun("", "locate", id.String()))
	if filepath.Base(module) != "stan_services_model_"+id.Token()+".so" {
		t.Errorf("locate = %q", module)
	}
	if log := h.mustRun("", "log", id.String()); !strings.Contains(log, "lp_accum__") {
		t.Errorf("build log = %q, want compiler output", log)
	}
	generated := filepath.Join(filepath.Dir(module), "model_"+id.Token()+".cpp")
	if _, err := os.Stat(generated); err != nil {
		t.Errorf("generated source missing: %v", err)
	}

	// A second build is served from the cache.
	if got := h.mustRun("", "build", program); got != id.String()+"\n" {
		t.Errorf("cached build printed %q", got)
	}
	h.mustRun("", "build", "--force", program)
}

func TestBuildCommandReportsTranspilerRejection(t *testing.T) {
	h := newBuildHarness(t)
	program := writeProgram(t, "parameters {real y;} model y ~ normal(0,1);}")

	requireExitCode(t, h.run("", "build", program), 2)
	if !strings.Contains(h.stderr.String(), "Syntax error") {
		t.Errorf("stderr = %q, want the syntax diagnostic", h.stderr.String())
	}
	id := modelid.Derive("parameters {real y;} model y ~ normal(0,1);}")
	requireExitCode(t, h.run("", "locate", id.String()), 1)
}

func TestLoadCommandOpensSharedObject(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("native modules load only on linux and darwin")
	}
	compiler, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("no C compiler on PATH")
	}
	h := newHarness(t, "")
	id := modelid.Derive("parameters {real y;} model {}")
	directory, err := modelcache.New(h.root).EnsureModelDirectory(id)
	if err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(t.TempDir(), "services.c")
	if err := os.WriteFile(source, []byte("int StanServices(void) { return 1; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	module := filepath.Join(directory, "stan_services_model_"+id.Token()+".so")
	if output, err := exec.Command(compiler, "-shared", "-fPIC", "-o", module, source).CombinedOutput(); err != nil {
		t.Fatalf("cc: %v\n%s", err, output)
	}

	if got := h.mustRun("", "load", id.String()); got != module+"\n" {
		t.Errorf("load printed %q, want %q", got, module)
	}
}
