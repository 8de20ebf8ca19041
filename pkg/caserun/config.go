// Package caserun drives a bridge the way a solver does once its time loop
// has finished: publish the final fields, run script commands over the
// internal cells and then over each boundary patch, exchange scalars and
// text, and write the computed fields back out.
package caserun

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

type Config struct {
	// Script is loaded once when the bridge is created. Environment
	// variables are expanded by the bridge.
	Script  string        `yaml:"script"`
	Debug   *bool         `yaml:"debug"`
	Timeout time.Duration `yaml:"timeout"`

	Fields        []FieldConfig      `yaml:"fields"`
	Scalars       map[string]float64 `yaml:"scalars"`
	Texts         map[string]string  `yaml:"texts"`
	Commands      []string           `yaml:"commands"`
	PatchCommands []string           `yaml:"patch_commands"`
	Report        ReportConfig       `yaml:"report"`

	Logging zeroconfig.Config `yaml:"logging"`

	dir string
}

// FieldConfig describes one field. Exactly one of File and Like is set:
// File reads the field from JSON, Like allocates a zero field with the
// same mesh layout as an earlier field.
type FieldConfig struct {
	Name       string `yaml:"name"`
	File       string `yaml:"file"`
	Like       string `yaml:"like"`
	Components int    `yaml:"components"`
	Output     string `yaml:"output"`
}

type ReportConfig struct {
	Scalars []string `yaml:"scalars"`
	Texts   []string `yaml:"texts"`
}

// LoadConfig reads a YAML case config. Relative field paths are resolved
// against the config file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Logging.Writers) == 0 {
		cfg.Logging.Writers = []zeroconfig.WriterConfig{{Type: "stderr", Format: "pretty"}}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Script == "" {
		return fmt.Errorf("script is required")
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	seen := make(map[string]bool, len(cfg.Fields))
	for i, f := range cfg.Fields {
		switch {
		case f.Name == "":
			return fmt.Errorf("fields[%d]: name is required", i)
		case seen[f.Name]:
			return fmt.Errorf("fields[%d]: duplicate field %s", i, f.Name)
		case (f.File == "") == (f.Like == ""):
			return fmt.Errorf("field %s: exactly one of file and like must be set", f.Name)
		case f.Like != "" && !seen[f.Like]:
			return fmt.Errorf("field %s: like refers to %s, which is not defined before it", f.Name, f.Like)
		case f.Components < 0:
			return fmt.Errorf("field %s: components must not be negative", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// DebugEnabled reports whether bridge tracing is on. It defaults to true.
func (cfg *Config) DebugEnabled() bool {
	return cfg.Debug == nil || *cfg.Debug
}

// resolve leaves paths starting with $ or ~ alone; the bridge expands those
// itself.
func (cfg *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || cfg.dir == "" || strings.HasPrefix(path, "$") || strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(cfg.dir, path)
}
