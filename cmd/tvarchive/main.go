// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/tvarchive/internal/buildinfo"
	"github.com/autobrr/tvarchive/internal/config"
	"github.com/autobrr/tvarchive/internal/database"
	"github.com/autobrr/tvarchive/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "tvarchive",
		Short:        "Personal TV series archive",
		Long:         "tvarchive keeps track of the series, seasons and episodes you watch.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		RunServeCommand(),
		RunVersionCommand(),
		RunCreateUserCommand(),
		RunChangePasswordCommand(),
		RunHashPasswordCommand(),
		RunBlacklistCommand(),
		RunArchiveCommand(),
		RunDBCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				out, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Print(buildinfo.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")
	return cmd
}

func addConfigFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVar(path, "config", "", "Config file or directory (default is OS-specific: ~/.config/tvarchive or %APPDATA%\\tvarchive)")
}

// app holds what every command needs: the loaded config and an open,
// migrated database.
type app struct {
	cfg *config.AppConfig
	db  *database.DB
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.New(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Config.Version = buildinfo.Version
	logger.Setup(cfg.Current())

	db, err := database.OpenFromConfig(cfg.Current(), cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &app{cfg: cfg, db: db}, nil
}

func (a *app) Close() error {
	err := a.db.Close()
	_ = logger.Close()
	return err
}
