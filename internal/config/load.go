package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// When no explicit path is given and the primary config.jsonc is absent, the
// legacy config.conf location is probed before falling back to defaults.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	var legacyWarnings []Warning

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}

		if explicitPath == "" {
			legacyPath, legacyErr := LegacyPath()
			if legacyErr == nil {
				if legacyContent, readErr := os.ReadFile(legacyPath); readErr == nil {
					legacyWarnings = []Warning{{
						Message: fmt.Sprintf("legacy config path %q is deprecated; migrate to %q", legacyPath, resolvedPath),
					}}
					resolvedPath = legacyPath
					content = legacyContent
				}
			}
		}

		if content == nil {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: append(legacyWarnings, warnings...),
		Exists:   true,
	}, nil
}
