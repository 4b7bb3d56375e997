// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LoadManifest reads, schema-checks, and validates the manifest in dir and
// returns its descriptor.
func LoadManifest(dir string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) //nolint:gosec // dir is a plugin directory chosen by the operator
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return m.Descriptor(dir)
}

// Discover returns a descriptor for every plugin directory under root.
// Directories without a valid manifest are logged and skipped. A missing
// root yields no plugins.
func Discover(root string, logger *slog.Logger) ([]*Descriptor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugins directory: %w", err)
	}

	var descs []*Descriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		desc, err := LoadManifest(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("skipping directory without manifest", "dir", entry.Name())
				continue
			}
			logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", FormatSchemaError(err))
			continue
		}
		descs = append(descs, desc)
	}
	return descs, nil
}
