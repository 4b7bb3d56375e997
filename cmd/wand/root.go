// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the wand CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wand",
		Short: "wand - a plugin host for Lua and binary plugins",
		Long: `wand loads plugins from a directory, orders them by their declared
dependencies, and drives each through create, start, end, and destroy.
Plugins call host functions and each other's exported methods through a
typed call bridge.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
