package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Config selects a storage backend.
type Config struct {
	// Driver is one of "memory", "file" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is a directory for "file" and a database file for "sqlite".
	Path string `yaml:"path"`
}

// Open creates the repository described by cfg.
func Open(cfg Config, logger *slog.Logger) (Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: file driver needs a path")
		}
		return NewFileStore(cfg.Path, logger)
	case "sqlite", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: sqlite driver needs a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		return OpenSQLite(cfg.Path, logger)
	}
	return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
}
