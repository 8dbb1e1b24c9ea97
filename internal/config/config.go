// Package config loads the per-workspace settings file .goextract.yaml.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
)

// FileName is the settings file looked up at the workspace root.
const FileName = ".goextract.yaml"

// Config holds the settings of one workspace. Unset keys keep their defaults.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Extract ExtractConfig `yaml:"extract"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig mirrors refactor.EngineConfig.
type EngineConfig struct {
	VerifyResult bool   `yaml:"verify_result"`
	Importer     string `yaml:"importer"`
}

// ExtractConfig holds the defaults of an extract-struct request.
type ExtractConfig struct {
	Accessors bool `yaml:"accessors"`
	TopLevel  bool `yaml:"top_level"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			VerifyResult: true,
			Importer:     analysis.ImporterDefault,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWorkspace reads the settings file at the root of a workspace.
func LoadWorkspace(root string) (*Config, error) {
	return Load(filepath.Join(root, FileName))
}

// Validate rejects values no component understands.
func (c *Config) Validate() error {
	switch c.Engine.Importer {
	case analysis.ImporterDefault, analysis.ImporterSource:
	default:
		return fmt.Errorf("engine.importer: unknown importer %q", c.Engine.Importer)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// EngineOptions converts the engine section for refactor.CreateEngineWithConfig.
func (c *Config) EngineOptions() *refactor.EngineConfig {
	return &refactor.EngineConfig{
		VerifyResult: c.Engine.VerifyResult,
		ImporterMode: c.Engine.Importer,
	}
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: unknown level %q", name)
	}
}

// NewLogger builds the logger described by the log section. verbose forces
// debug output.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
