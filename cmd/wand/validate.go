// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/wand/internal/plugin"
)

// newValidateCmd creates the validate subcommand.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate plugin manifests",
		Long: `Check every plugin.yaml under dir against the manifest schema and
rules, and report dependency problems between the plugins found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return oops.In("wand").With("dir", root).Wrap(err)
	}

	out := cmd.OutOrStdout()
	var descs []*plugin.Descriptor
	bad := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		desc, err := plugin.LoadManifest(filepath.Join(root, entry.Name()))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			bad++
			fmt.Fprintf(out, "FAIL %s: %s\n", entry.Name(), plugin.FormatSchemaError(err))
			continue
		}
		descs = append(descs, desc)
	}

	plan := plugin.Resolve(descs, nil)
	for _, d := range descs {
		if err := plan.Err(d.Name); err != nil {
			bad++
			fmt.Fprintf(out, "FAIL %s: %v\n", d.Name, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s %s\n", d.Name, d.Version)
	}

	if bad > 0 {
		return oops.In("wand").With("dir", root).Errorf("%d plugin(s) failed validation", bad)
	}
	return nil
}
