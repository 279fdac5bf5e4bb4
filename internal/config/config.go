// Package config loads the screenspec YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"screenspec/internal/history"
	"screenspec/internal/state"
	"screenspec/internal/storage"
)

const (
	DefaultPath = "screenspec.yaml"
	EnvPath     = "SCREENSPEC_CONFIG"
)

type Config struct {
	Storage storage.Config `yaml:"storage"`
	Editor  EditorConfig   `yaml:"editor"`
	Share   ShareConfig    `yaml:"share"`
	Export  ExportConfig   `yaml:"export"`
	Logging LoggingConfig  `yaml:"logging"`
}

type EditorConfig struct {
	Color           string `yaml:"color"`
	StrokeSize      int    `yaml:"stroke_size"`
	HistoryCapacity int    `yaml:"history_capacity"`
	Tool            string `yaml:"tool"`
}

type ShareConfig struct {
	Port      int    `yaml:"port"`
	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance"`
}

type ExportConfig struct {
	Format string `yaml:"format"`
	Author string `yaml:"author"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Path returns the config file to use: explicit, then $SCREENSPEC_CONFIG, then
// the default name.
func Path(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file. A missing file at the default
// location yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML after expanding environment variables.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Driver {
		case "sqlite":
			cfg.Storage.Path = "screenspec.db"
		case "file":
			cfg.Storage.Path = "screenspec-data"
		}
	}
	if cfg.Editor.Color == "" {
		cfg.Editor.Color = "#ff0000"
	}
	if cfg.Editor.StrokeSize == 0 {
		cfg.Editor.StrokeSize = state.DefaultStrokeSize
	}
	if cfg.Editor.HistoryCapacity == 0 {
		cfg.Editor.HistoryCapacity = history.DefaultCapacity
	}
	if cfg.Editor.Tool == "" {
		cfg.Editor.Tool = "text"
	}
	if cfg.Share.Port == 0 {
		cfg.Share.Port = 8765
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = "pdf"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := state.ParseColor(c.Editor.Color); err != nil {
		return fmt.Errorf("editor.color: %w", err)
	}
	if c.Editor.StrokeSize < 1 {
		return fmt.Errorf("editor.stroke_size: must be positive, got %d", c.Editor.StrokeSize)
	}
	if c.Editor.HistoryCapacity < 1 {
		return fmt.Errorf("editor.history_capacity: must be positive, got %d", c.Editor.HistoryCapacity)
	}
	if _, err := state.ParseTool(c.Editor.Tool); err != nil {
		return fmt.Errorf("editor.tool: %w", err)
	}
	if c.Share.Port < 0 || c.Share.Port > 65535 {
		return fmt.Errorf("share.port: out of range: %d", c.Share.Port)
	}
	switch c.Export.Format {
	case "pdf", "html":
	default:
		return fmt.Errorf("export.format: unknown format %q", c.Export.Format)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format: unknown format %q", c.Logging.Format)
	}
	return nil
}

// Style returns the editor's default annotation style.
func (e EditorConfig) Style() state.Style {
	return state.Style{Color: state.MustColor(e.Color), StrokeSize: e.StrokeSize}
}

// DefaultTool returns the tool selected when an editor opens.
func (e EditorConfig) DefaultTool() state.Tool {
	t, err := state.ParseTool(e.Tool)
	if err != nil {
		return state.ToolText
	}
	return t
}
