// Package config provides configuration loading for ecsig.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/jward/ecsig/internal/runtime"
)

// Config represents the complete ecsig configuration.
type Config struct {
	// AnnotationMaxLength caps words inside [...] annotations (0 disables).
	AnnotationMaxLength int `yaml:"annotation_max_length"`
	// Owner labels diagnostics for signatures compiled from the command line.
	Owner string `yaml:"owner"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
	// Parallel selects the worker-pool indexer. Nil means the default (true).
	Parallel *bool `yaml:"parallel,omitempty"`
	// Exclude lists doublestar globs, relative to the indexed root.
	Exclude []string `yaml:"exclude"`
	// RulesDir overrides the embedded lint rules.
	RulesDir string        `yaml:"rules_dir"`
	Extract  ExtractConfig `yaml:"extract"`
}

// ExtractConfig configures which calls declare signatures.
type ExtractConfig struct {
	Calls []runtime.CallSpec `yaml:"calls"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AnnotationMaxLength: 16,
		LogLevel:            "warn",
		Exclude:             []string{"**/build/**", "**/third_party/**"},
		Extract: ExtractConfig{
			Calls: append([]runtime.CallSpec(nil), runtime.DefaultCalls...),
		},
	}
}

// ParallelEnabled reports whether the parallel indexer should be used.
func (c *Config) ParallelEnabled() bool {
	return c.Parallel == nil || *c.Parallel
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to warn.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.AnnotationMaxLength < 0 {
		return fmt.Errorf("annotation_max_length must not be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("exclude pattern %q is invalid", pattern)
		}
	}
	for i, call := range c.Extract.Calls {
		if call.Name == "" {
			return fmt.Errorf("extract.calls[%d]: name is required", i)
		}
		if call.SignatureArg < 0 {
			return fmt.Errorf("extract.calls[%d] %s: signature_arg must not be negative", i, call.Name)
		}
		if call.OwnerArg == call.SignatureArg {
			return fmt.Errorf("extract.calls[%d] %s: owner_arg and signature_arg must differ", i, call.Name)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.AnnotationMaxLength != 0 {
		c.AnnotationMaxLength = other.AnnotationMaxLength
	}
	if other.Owner != "" {
		c.Owner = other.Owner
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Parallel != nil {
		p := *other.Parallel
		c.Parallel = &p
	}
	if len(other.Exclude) > 0 {
		c.Exclude = other.Exclude
	}
	if other.RulesDir != "" {
		c.RulesDir = other.RulesDir
	}
	if len(other.Extract.Calls) > 0 {
		c.Extract.Calls = other.Extract.Calls
	}
}
