// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/tvarchive/internal/auth"
	"github.com/autobrr/tvarchive/internal/models"
)

func newAuthService(a *app) *auth.Service {
	cfg := a.cfg.Current()
	tokens := auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenDuration(), cfg.RefreshTokenDuration())
	return auth.NewService(a.db, tokens, nil)
}

// readPassword prompts without echo on a terminal and otherwise reads the
// first line of stdin when the flag is empty.
func readPassword(cmd *cobra.Command, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}

	cmd.Print(prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if len(raw) == 0 {
			return "", errors.New("no password provided")
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password provided")
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password provided")
	}
	return password, nil
}

func RunCreateUserCommand() *cobra.Command {
	var (
		configPath string
		username   string
		email      string
		password   string
		staff      bool
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an active user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}

			pw, err := readPassword(cmd, password, "Password: ")
			if err != nil {
				return err
			}

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := newAuthService(a).CreateUser(cmd.Context(), username, email, pw, staff)
			if errors.Is(err, models.ErrUsernameTaken) {
				cmd.Printf("User '%s' already exists, skipping\n", username)
				return nil
			}
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			cmd.Printf("User '%s' created successfully (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")
	cmd.Flags().BoolVar(&staff, "staff", false, "Grant staff privileges")

	return cmd
}

func RunChangePasswordCommand() *cobra.Command {
	var (
		configPath  string
		username    string
		newPassword string
	)

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Set a new password for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return errors.New("--username is required")
			}

			pw, err := readPassword(cmd, newPassword, "New password: ")
			if err != nil {
				return err
			}

			a, err := openApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := newAuthService(a).ChangePasswordByUsername(cmd.Context(), username, pw); err != nil {
				if errors.Is(err, models.ErrUserNotFound) {
					return fmt.Errorf("user '%s' not found", username)
				}
				return fmt.Errorf("change password: %w", err)
			}

			cmd.Println("Password changed successfully")
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "New password (read from stdin when empty)")

	return cmd
}

// RunHashPasswordCommand prints an argon2id hash usable as a metrics basic
// auth secret.
func RunHashPasswordCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print an argon2id hash of a password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readPassword(cmd, password, "Password: ")
			if err != nil {
				return err
			}

			hash, err := auth.HashPassword(pw)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			cmd.Println(hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password (read from stdin when empty)")

	return cmd
}
