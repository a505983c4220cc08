// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/parlance-ai/parlance/internal/config"
	"github.com/parlance-ai/parlance/internal/store"
)

// Migrator is the part of store.Migrator the CLI drives.
type Migrator interface {
	Up() error
	Down() error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (Migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Manage the PostgreSQL schema. With no subcommand all pending
migrations are applied.`,
		Args: cobra.NoArgs,
		RunE: runMigrateUp,
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all accounts)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("down drops every table; pass --yes to confirm")
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m Migrator) error {
				st, err := m.Status()
				if err != nil {
					return err
				}
				cmd.Print(formatMigrationStatus(st))
				return nil
			})
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Long: `Mark VERSION as applied without running it. Use this after repairing
a migration that failed halfway and left the schema dirty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	return withMigrator(cmd, func(m Migrator) error {
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return err
		}
		cmd.Println("Migrations completed successfully")
		return nil
	})
}

// withMigrator opens a migrator for the configured database and closes it after fn.
func withMigrator(cmd *cobra.Command, fn func(Migrator) error) (err error) {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code(config.CodeInvalid).
			With("key", "database.url").
			Errorf("database URL is required (set DATABASE_URL or --database-url)")
	}

	m, err := newMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(m)
}

func parseForceVersion(arg string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || version < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Errorf("version must be a non-negative integer")
	}
	return version, nil
}

func formatMigrationStatus(st *store.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current version: %d", st.Version)
	if st.Dirty {
		b.WriteString(" (dirty)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Applied: %s\n", joinVersions(st.Applied))
	fmt.Fprintf(&b, "Pending: %s\n", joinVersions(st.Pending))
	return b.String()
}

func joinVersions(versions []uint) string {
	if len(versions) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}
