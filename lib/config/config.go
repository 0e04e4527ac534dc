// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/modelcache/lib/modelcache"
	"github.com/bureau-foundation/modelcache/lib/version"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "MODELCACHE_CONFIG"

// Config is the complete modelcache configuration.
type Config struct {
	// Cache configures where artifacts live.
	Cache CacheConfig `yaml:"cache"`

	// Toolchain configures the external transpiler and C++ compiler.
	Toolchain ToolchainConfig `yaml:"toolchain"`

	// Build configures build coordination.
	Build BuildConfig `yaml:"build"`
}

// CacheConfig configures the artifact cache.
type CacheConfig struct {
	// Root is the cache root directory. Models live under
	// <root>/models/<token>.
	// Default: the per-user cache directory, namespaced by version.
	Root string `yaml:"root"`
}

// ToolchainConfig configures the external tools a build runs.
type ToolchainConfig struct {
	// Stanc is the transpiler binary, by path or by name in PATH.
	// Default: stanc
	Stanc string `yaml:"stanc"`

	// StancArgs are extra arguments passed to every stanc invocation.
	StancArgs []string `yaml:"stanc_args"`

	// CXX is the C++ compiler driver.
	// Default: c++
	CXX string `yaml:"cxx"`

	// PackageDir holds the bundled headers, libraries and the
	// precompiled stan_services object.
	PackageDir string `yaml:"package_dir"`

	// CompileArgs replace the default optimization and language flags.
	// Default: -O3 -std=c++14
	CompileArgs []string `yaml:"compile_args"`
}

// BuildConfig configures the build coordinator.
type BuildConfig struct {
	// MaxConcurrent bounds simultaneous native builds.
	// Default: 1
	MaxConcurrent int `yaml:"max_concurrent"`

	// LockTimeout is how long to wait for another process building the
	// same model, as a Go duration. "0" waits indefinitely.
	// Default: 30m
	LockTimeout string `yaml:"lock_timeout"`
}

// LockTimeoutDuration parses LockTimeout.
func (b BuildConfig) LockTimeoutDuration() (time.Duration, error) {
	if b.LockTimeout == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(b.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("build.lock_timeout: %w", err)
	}
	return duration, nil
}

// Default returns the default configuration. LoadFile decodes the file
// over these values, so a config file need only name what it changes.
func Default() *Config {
	root, err := modelcache.DefaultRoot("modelcache", version.Short())
	if err != nil {
		root = filepath.Join(os.TempDir(), "modelcache", version.Short())
	}

	return &Config{
		Cache: CacheConfig{
			Root: root,
		},
		Toolchain: ToolchainConfig{
			Stanc:      "stanc",
			CXX:        "c++",
			PackageDir: "/usr/local/share/modelcache",
		},
		Build: BuildConfig{
			MaxConcurrent: 1,
			LockTimeout:   "30m",
		},
	}
}

// Load loads configuration from the MODELCACHE_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your modelcache.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The only
// expansion performed is ${HOME} and similar path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// Resolve loads the file at path when set, otherwise the file named by
// MODELCACHE_CONFIG when set, otherwise returns Default().
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"MODELCACHE_ROOT": c.Cache.Root,
		"HOME":            os.Getenv("HOME"),
	}

	c.Cache.Root = expandVars(c.Cache.Root, vars)
	vars["MODELCACHE_ROOT"] = c.Cache.Root // Update for dependent paths.

	c.Toolchain.Stanc = expandVars(c.Toolchain.Stanc, vars)
	c.Toolchain.CXX = expandVars(c.Toolchain.CXX, vars)
	c.Toolchain.PackageDir = expandVars(c.Toolchain.PackageDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Cache.Root == "" {
		errs = append(errs, fmt.Errorf("cache.root is required"))
	} else if !filepath.IsAbs(c.Cache.Root) {
		errs = append(errs, fmt.Errorf("cache.root must be absolute, got %q", c.Cache.Root))
	}

	if c.Toolchain.Stanc == "" {
		errs = append(errs, fmt.Errorf("toolchain.stanc is required"))
	}
	if c.Toolchain.CXX == "" {
		errs = append(errs, fmt.Errorf("toolchain.cxx is required"))
	}
	if c.Toolchain.PackageDir == "" {
		errs = append(errs, fmt.Errorf("toolchain.package_dir is required"))
	}

	if c.Build.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("build.max_concurrent must be at least 1, got %d", c.Build.MaxConcurrent))
	}
	if duration, err := c.Build.LockTimeoutDuration(); err != nil {
		errs = append(errs, err)
	} else if duration < 0 {
		errs = append(errs, fmt.Errorf("build.lock_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ToolPath resolves a configured tool. Values containing a path
// separator are used as given; bare names are looked up in PATH.
func ToolPath(name string) (string, error) {
	if filepath.Base(name) != name {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("tool %s: %w", name, err)
		}
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}
