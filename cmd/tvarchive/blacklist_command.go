// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/autobrr/tvarchive/internal/services/blacklist"
)

func RunBlacklistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage blocked IP addresses",
	}

	cmd.AddCommand(runBlacklistAddCommand(), runBlacklistRemoveCommand(), runBlacklistListCommand())
	return cmd
}

func openBlacklist(configPath string) (*app, *blacklist.Service, error) {
	a, err := openApp(configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg := a.cfg.Current()
	cidrs, err := cfg.ParseBlacklistCIDRs()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, blacklist.NewService(a.db, cidrs, blacklist.PolicyFromConfig(cfg), nil), nil
}

func runBlacklistAddCommand() *cobra.Command {
	var (
		configPath string
		stretch    time.Duration
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "add <ip>",
		Short: "Block an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, svc, err := openBlacklist(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entry, err := svc.Add(cmd.Context(), args[0], stretch, reason)
			if err != nil {
				return fmt.Errorf("add %s: %w", args[0], err)
			}

			if entry.Permanent() {
				cmd.Printf("Blocked %s permanently\n", entry.IP)
			} else {
				cmd.Printf("Blocked %s until %s\n", entry.IP, entry.ExpiresAt().Format(time.RFC3339))
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&stretch, "stretch", 0, "How long the block lasts, e.g. 1h (0 blocks permanently)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to administrators")

	return cmd
}

func runBlacklistRemoveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "remove <ip>",
		Short: "Unblock an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, svc, err := openBlacklist(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := svc.Remove(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("remove %s: %w", args[0], err)
			}

			cmd.Printf("Unblocked %s\n", args[0])
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runBlacklistListCommand() *cobra.Command {
	var (
		configPath string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List blocked IP addresses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, svc, err := openBlacklist(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := svc.List(cmd.Context(), activeOnly)
			if err != nil {
				return err
			}

			if len(entries) == 0 {
				cmd.Println("No blocked addresses")
				return nil
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "IP\tSINCE\tEXPIRES\tACTIVE\tREASON")
			for _, e := range entries {
				expires := "never"
				if !e.Permanent() {
					expires = e.ExpiresAt().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", e.IP, e.RecordTime.Format(time.RFC3339), expires, e.ActiveAt(now), e.Reason)
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show entries that are still in effect")

	return cmd
}
