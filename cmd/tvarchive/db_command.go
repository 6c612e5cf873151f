// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/autobrr/tvarchive/internal/services/audit"
	"github.com/autobrr/tvarchive/pkg/sessionstore"
)

func RunDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}

	cmd.AddCommand(runDBPurgeLogsCommand(), runDBPurgeSessionsCommand())
	return cmd
}

func runDBPurgeLogsCommand() *cobra.Command {
	var (
		configPath string
		days       int
	)

	cmd := &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete change log entries older than the retention period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("days") {
				days = a.cfg.Current().ChangeLogRetentionDays
			}
			if days <= 0 {
				return errors.New("no retention configured, pass --days")
			}

			removed, err := audit.NewService(a.db).Purge(cmd.Context(), days)
			if err != nil {
				return err
			}

			cmd.Printf("Removed %d change log entries older than %d days\n", removed, days)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&days, "days", 0, "Keep this many days (defaults to changeLogRetentionDays)")

	return cmd
}

func runDBPurgeSessionsCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired login sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			store := sessionstore.New(a.db, sessionstore.WithCleanupInterval(0))
			removed, err := store.DeleteExpired(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Removed %d expired sessions\n", removed)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
