// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stanc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Category classifies a rejected program.
type Category string

const (
	// CategorySyntax means the program does not parse.
	CategorySyntax Category = "syntax"

	// CategorySemantic means the program parses but is invalid, for
	// example by calling an unknown distribution.
	CategorySemantic Category = "semantic"

	// CategoryUnknown covers transpiler failures whose output names
	// neither category (crashes, bad flags).
	CategoryUnknown Category = "unknown"
)

// CompilationError reports that the transpiler rejected a program.
type CompilationError struct {
	Category Category

	// Message is the transpiler's diagnostic text, verbatim.
	Message string
}

func (e *CompilationError) Error() string {
	return e.Message
}

// Classify returns a CompilationError for diagnostic text, choosing the
// category from the phrase the transpiler uses to introduce it.
func Classify(message string) *CompilationError {
	category := CategoryUnknown
	switch {
	case strings.Contains(message, "Syntax error"):
		category = CategorySyntax
	case strings.Contains(message, "Semantic error"):
		category = CategorySemantic
	}
	return &CompilationError{Category: category, Message: message}
}

// Output is the result of a successful transpilation.
type Output struct {
	// Code is the generated C++ source.
	Code string

	// Warnings is the transpiler's non-fatal diagnostic text, empty
	// when there are none.
	Warnings string
}

// Transpiler converts program source into C++. name is the internal
// model name the generated code is declared under. Rejected programs
// return a *CompilationError.
type Transpiler interface {
	Transpile(ctx context.Context, source, name string) (*Output, error)
}

// Command runs a stanc binary as the Transpiler.
type Command struct {
	// Binary is the stanc executable. Resolved on PATH when it has no
	// path separator.
	Binary string

	// Args are extra arguments placed before the generated ones.
	Args []string
}

// Transpile writes source to a temporary "<name>.stan" file, runs
// "stanc [Args] --name=<name> --o=<out> <file>", and returns the
// generated code with stderr as warnings.
func (c *Command) Transpile(ctx context.Context, source, name string) (*Output, error) {
	binary, err := exec.LookPath(c.Binary)
	if err != nil {
		return nil, fmt.Errorf("finding transpiler %q: %w", c.Binary, err)
	}

	workDir, err := os.MkdirTemp("", "modelcache_")
	if err != nil {
		return nil, fmt.Errorf("creating transpiler work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, name+".stan")
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("writing program source: %w", err)
	}
	outputPath := filepath.Join(workDir, name+".hpp")

	args := append(append([]string{}, c.Args...),
		"--name="+name,
		"--o="+outputPath,
		sourcePath,
	)

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("running %s: %w", c.Binary, err)
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = strings.TrimSpace(stdout.String())
		}
		if message == "" {
			message = fmt.Sprintf("%s exited with status %d", c.Binary, exitErr.ExitCode())
		}
		return nil, Classify(message)
	}

	code, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading generated code: %w", err)
	}
	return &Output{Code: string(code), Warnings: stderr.String()}, nil
}
