// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/wand/internal/config"
	"github.com/holomush/wand/internal/store"
)

// newMigrateCmd creates the migrate command and its up, down, and status
// subcommands.
func newMigrateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the plugin key-value database schema",
		Long: `Apply or roll back the PostgreSQL schema that backs plugin key-value
data. The database comes from database_url in the config file or the
--database-url flag. "wand run" applies pending migrations on its own.`,
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().String("database-url", "", "PostgreSQL URL")

	withMigrator := func(fn func(*cobra.Command, *store.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return oops.In("wand").Code("CONFIG_INVALID").Errorf("database_url is not configured")
			}
			m, err := store.NewMigrator(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(cmd, m)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			v, _, err := m.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Database at version %d\n", v)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all plugin data",
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back")
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied version and pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m *store.Migrator) error {
			v, dirty, err := m.Version()
			if err != nil {
				return err
			}
			name, err := store.MigrationName(v)
			if err != nil {
				return err
			}
			cmd.Printf("Version: %d %s\n", v, name)
			if dirty {
				cmd.Println("Dirty:   yes (a migration failed partway; fix the database by hand)")
			}
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			cmd.Printf("Pending: %d\n", len(pending))
			for _, p := range pending {
				name, _ := store.MigrationName(p)
				cmd.Printf("  %s\n", name)
			}
			return nil
		}),
	})

	return cmd
}
