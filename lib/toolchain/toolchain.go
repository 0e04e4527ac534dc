// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/modelcache/lib/modelcache"
)

// Macro is a preprocessor definition. An empty Value defines the name
// without a value (-DNAME); otherwise -DNAME=VALUE.
type Macro struct {
	Name  string
	Value string
}

// Flag returns the compiler flag for m.
func (m Macro) Flag() string {
	if m.Value == "" {
		return "-D" + m.Name
	}
	return "-D" + m.Name + "=" + m.Value
}

// Extension describes one loadable module.
type Extension struct {
	// Name is the output filename without the platform suffix. It is
	// independent of any symbol the module registers.
	Name string

	Sources          []string
	Macros           []Macro
	IncludeDirs      []string
	LibraryDirs      []string
	Libraries        []string
	ExtraCompileArgs []string
	ExtraLinkArgs    []string

	// ExtraObjects are prebuilt object files linked into the module.
	ExtraObjects []string
}

// BuildError reports a failed native build. Output is the captured
// compiler and linker text, verbatim.
type BuildError struct {
	Output string
}

func (e *BuildError) Error() string {
	if e.Output == "" {
		return "native build failed"
	}
	return "native build failed:\n" + e.Output
}

// Toolchain builds extensions into destination and returns the
// captured compiler output. A non-zero exit from any step returns a
// *BuildError.
type Toolchain interface {
	Build(ctx context.Context, extensions []Extension, destination string) (string, error)
}

// CXX builds extensions with a C++ compiler driver such as g++ or
// clang++.
type CXX struct {
	// Compiler is the driver executable. Defaults to "c++".
	Compiler string

	// Suffix is the module filename suffix. Defaults to the platform's
	// primary extension suffix.
	Suffix string

	Logger *slog.Logger
}

func (c *CXX) compiler() string {
	if c.Compiler == "" {
		return "c++"
	}
	return c.Compiler
}

func (c *CXX) suffix() string {
	if c.Suffix == "" {
		return modelcache.ExtensionSuffixes()[0]
	}
	return c.Suffix
}

func (c *CXX) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Build compiles and links each extension. Object files go to a
// temporary directory inside destination that is removed afterwards.
// The module is linked under a temporary name and renamed into place,
// so an existing module is replaced whole.
func (c *CXX) Build(ctx context.Context, extensions []Extension, destination string) (string, error) {
	var output bytes.Buffer
	for _, extension := range extensions {
		if err := c.buildExtension(ctx, extension, destination, &output); err != nil {
			return output.String(), err
		}
	}
	return output.String(), nil
}

func (c *CXX) buildExtension(ctx context.Context, extension Extension, destination string, output *bytes.Buffer) error {
	if extension.Name == "" {
		return fmt.Errorf("extension has no name")
	}
	if len(extension.Sources) == 0 {
		return fmt.Errorf("extension %s has no sources", extension.Name)
	}

	buildTemp, err := os.MkdirTemp(destination, ".build-")
	if err != nil {
		return fmt.Errorf("creating build directory for %s: %w", extension.Name, err)
	}
	defer os.RemoveAll(buildTemp)

	objects := make([]string, 0, len(extension.Sources)+len(extension.ExtraObjects))
	for _, source := range extension.Sources {
		object := filepath.Join(buildTemp, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))+".o")
		if err := c.run(ctx, output, CompileArgs(extension, source, object)); err != nil {
			return err
		}
		objects = append(objects, object)
	}
	objects = append(objects, extension.ExtraObjects...)

	finalPath := filepath.Join(destination, extension.Name+c.suffix())
	linkedPath := filepath.Join(buildTemp, extension.Name+c.suffix())
	if err := c.run(ctx, output, LinkArgs(extension, objects, linkedPath)); err != nil {
		return err
	}
	if err := os.Rename(linkedPath, finalPath); err != nil {
		return fmt.Errorf("moving %s into place: %w", finalPath, err)
	}
	c.logger().Info("extension module linked", "module", finalPath)
	return nil
}

// CompileArgs returns the compiler arguments that turn source into
// object for extension.
func CompileArgs(extension Extension, source, object string) []string {
	args := []string{"-fPIC"}
	for _, macro := range extension.Macros {
		args = append(args, macro.Flag())
	}
	for _, directory := range extension.IncludeDirs {
		args = append(args, "-I"+directory)
	}
	args = append(args, extension.ExtraCompileArgs...)
	return append(args, "-c", source, "-o", object)
}

// LinkArgs returns the linker arguments that combine objects into the
// shared module at output.
func LinkArgs(extension Extension, objects []string, output string) []string {
	args := []string{"-shared"}
	args = append(args, objects...)
	for _, directory := range extension.LibraryDirs {
		args = append(args, "-L"+directory)
	}
	for _, library := range extension.Libraries {
		args = append(args, "-l"+library)
	}
	args = append(args, extension.ExtraLinkArgs...)
	return append(args, "-o", output)
}

// run executes the compiler with args, appending its combined output
// to output. A non-zero exit becomes a *BuildError carrying everything
// captured so far.
func (c *CXX) run(ctx context.Context, output *bytes.Buffer, args []string) error {
	command := exec.CommandContext(ctx, c.compiler(), args...)
	command.Stdout = output
	command.Stderr = output

	c.logger().Debug("running compiler", "compiler", c.compiler(), "args", strings.Join(args, " "))
	if err := command.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &BuildError{Output: output.String()}
		}
		return fmt.Errorf("running %s: %w", c.compiler(), err)
	}
	return nil
}
