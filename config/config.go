// Package config loads the csav tool configuration.
//
// The file is YAML, taken from the --config flag or the CSAV_CONFIG
// environment variable. Without either, defaults are used.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvVar = "CSAV_CONFIG"

type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Verbose bool `yaml:"verbose"`

	// BlueprintDB is the blueprint store path. Empty disables persistence.
	BlueprintDB string `yaml:"blueprint_db"`

	// PackageNodes names the nodes whose data is an object package.
	PackageNodes []string `yaml:"package_nodes"`

	// Enums lists type names decoded as enums rather than nested objects.
	Enums []string `yaml:"enums"`

	// Backup keeps a one-time .old copy of every overwritten save.
	Backup bool `yaml:"backup"`

	// MaxFileSize caps the size of save files that will be opened.
	MaxFileSize int64 `yaml:"max_file_size"`
}

func Default() *Config {
	return &Config{
		LogLevel:    "info",
		Backup:      true,
		MaxFileSize: 1 << 30,
	}
}

// Load reads the file named by CSAV_CONFIG, or returns defaults if the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads an explicitly named file; it must exist.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.expandPaths()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	if rest, ok := strings.CutPrefix(c.BlueprintDB, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			c.BlueprintDB = filepath.Join(home, rest)
		}
	}
	c.BlueprintDB = os.ExpandEnv(c.BlueprintDB)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("max_file_size must not be negative"))
	}
	for i, name := range c.PackageNodes {
		if name == "" {
			errs = append(errs, fmt.Errorf("package_nodes[%d] is empty", i))
		}
	}
	for i, name := range c.Enums {
		if name == "" || strings.ContainsAny(name, ":[] ") {
			errs = append(errs, fmt.Errorf("enums[%d]: invalid type name %q", i, name))
		}
	}
	return errors.Join(errs...)
}

// Level returns the configured slog level; Verbose forces debug.
func (c *Config) Level() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// IsPackageNode reports whether nodes with the given name carry packages.
func (c *Config) IsPackageNode(name string) bool {
	return slices.Contains(c.PackageNodes, name)
}
