// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/tvarchive/internal/services/archive"
)

func RunArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive operations",
	}

	cmd.AddCommand(runArchiveExportCommand())
	return cmd
}

func runArchiveExportCommand() *cobra.Command {
	var (
		configPath string
		username   string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the series a user can see as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("--username is required")
			}

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := newAuthService(a).GetUserByUsername(cmd.Context(), username)
			if err != nil {
				return fmt.Errorf("user '%s': %w", username, err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			svc := archive.NewService(a.db, archive.Options{ImageDir: a.cfg.GetImageDir()})
			if err := svc.ExportYAML(cmd.Context(), user, w); err != nil {
				return err
			}

			if output != "" && output != "-" {
				cmd.PrintErrf("Exported archive of '%s' to %s\n", username, output)
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&username, "username", "", "Export the archive as seen by this user")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")

	return cmd
}
