package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses and validates the runtime configuration.
//
// File paths inside the config (env_file, persona_file, session_log.path) may start with ~/ and,
// when relative, are taken relative to the config file's directory.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	if errors.Is(err, os.ErrNotExist) {
		return Loaded{
			Path:   resolvedPath,
			Config: Default(),
			Warnings: []Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
			}},
		}, nil
	}
	if err != nil {
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	baseDir := filepath.Dir(resolvedPath)
	for _, field := range []struct {
		key  string
		path *string
	}{
		{key: "env_file", path: &cfg.EnvFile},
		{key: "persona_file", path: &cfg.PersonaFile},
		{key: "session_log.path", path: &cfg.SessionLog.Path},
	} {
		resolved, err := resolveFilePath(*field.path, baseDir)
		if err != nil {
			return Loaded{}, fmt.Errorf("resolve %s: %w", field.key, err)
		}
		*field.path = resolved
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// resolveFilePath expands a leading ~/ and anchors relative paths at baseDir. Empty stays empty.
func resolveFilePath(path string, baseDir string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", nil
	case path == "~" || strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("unable to resolve user home")
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	case filepath.IsAbs(path):
		return filepath.Clean(path), nil
	default:
		return filepath.Join(baseDir, path), nil
	}
}
