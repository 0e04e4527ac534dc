// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package stanc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeStanc mimics the transpiler's command line and diagnostics for
// the three programs the tests use.
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
	echo "Expected \"{\" after \"model\"." >&2
	exit 1
fi
if grep -q 'no_such_distribution' "$src"; then
	echo "Semantic error in '$src', line 1, column 32 to column 54:" >&2
	echo "A returning function was expected but an undeclared identifier 'no_such_distribution' was supplied." >&2
	exit 1
fi
if grep -q '1/5' "$src"; then
	echo "Info: Found int division at '$src', line 1, column 41 to column 44:" >&2
	echo "  1 / 5" >&2
	echo "Values will be rounded towards zero." >&2
fi
printf '// Code generated by stanc\nnamespace %s_namespace {}\n' "$name" > "$out"
`

func installFakeStanc(t *testing.T) *Command {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stanc")
	if err := os.WriteFile(path, []byte(fakeStanc), 0o755); err != nil {
		t.Fatalf("writing fake stanc: %v", err)
	}
	return &Command{Binary: path}
}

func TestCommandTranspiles(t *testing.T) {
	command := installFakeStanc(t)

	output, err := command.Transpile(context.Background(),
		"parameters {real y;} model {y ~ normal(0,1);}", "test_model")
	if err != nil {
		t.Fatalf("Transpile: %v", err)
	}
	if !strings.Contains(output.Code, "Code generated by stanc") {
		t.Errorf("Code = %q, want generated header", output.Code)
	}
	if !strings.Contains(output.Code, "test_model_namespace") {
		t.Errorf("Code = %q, want the model name in the namespace", output.Code)
	}
	if output.Warnings != "" {
		t.Errorf("Warnings = %q, want none", output.Warnings)
	}
}

func TestCommandSyntaxError(t *testing.T) {
	command := installFakeStanc(t)

	_, err := command.Transpile(context.Background(),
		"parameters {real y;} model y ~ normal(0,1);}", "test_model")
	var compilationErr *CompilationError
	if !errors.As(err, &compilationErr) {
		t.Fatalf("Transpile error = %v, want *CompilationError", err)
	}
	if compilationErr.Category != CategorySyntax {
		t.Errorf("Category = %q, want %q", compilationErr.Category, CategorySyntax)
	}
	if !strings.Contains(compilationErr.Error(), "Syntax error in") {
		t.Errorf("message = %q, want it to contain %q", compilationErr.Error(), "Syntax error in")
	}
}

func TestCommandSemanticError(t *testing.T) {
	command := installFakeStanc(t)

	_, err := command.Transpile(context.Background(),
		"parameters {real z;} model {z ~ no_such_distribution();}", "test_model")
	var compilationErr *CompilationError
	if !errors.As(err, &compilationErr) {
		t.Fatalf("Transpile error = %v, want *CompilationError", err)
	}
	if compilationErr.Category != CategorySemantic {
		t.Errorf("Category = %q, want %q", compilationErr.Category, CategorySemantic)
	}
	if !strings.Contains(compilationErr.Error(), "Semantic error in") {
		t.Errorf("message = %q, want it to contain %q", compilationErr.Error(), "Semantic error in")
	}
}

func TestCommandWarnings(t *testing.T) {
	command := installFakeStanc(t)

	output, err := command.Transpile(context.Background(),
		"parameters {real y;} model {y ~ normal(0,1/5);}", "test_model")
	if err != nil {
		t.Fatalf("Transpile: %v", err)
	}
	if !strings.Contains(output.Warnings, "int division") {
		t.Errorf("Warnings = %q, want it to mention int division", output.Warnings)
	}
}

func TestCommandMissingBinary(t *testing.T) {
	command := &Command{Binary: filepath.Join(t.TempDir(), "no-such-stanc")}
	_, err := command.Transpile(context.Background(), "model {}", "test_model")
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	var compilationErr *CompilationError
	if errors.As(err, &compilationErr) {
		t.Errorf("missing binary reported as a compilation error: %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    Category
	}{
		{"Syntax error in 'x.stan', line 1", CategorySyntax},
		{"Semantic error in 'x.stan', line 2", CategorySemantic},
		{"stanc: internal compiler error", CategoryUnknown},
	}
	for _, test := range tests {
		got := Classify(test.message)
		if got.Category != test.want {
			t.Errorf("Classify(%q).Category = %q, want %q", test.message, got.Category, test.want)
		}
		if got.Message != test.message {
			t.Errorf("Classify(%q).Message = %q, want verbatim", test.message, got.Message)
		}
	}
}
