// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the ghgate command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:               "ghgate",
	DisableAutoGenTag: true,
	Short:             "GitHub-backed authentication gate for HTTP services",
	Long: `ghgate authenticates HTTP requests against GitHub. Callers present either a
previously issued signed session cookie or a fresh OAuth authorization code;
authorized logins are decided by configurable allow-lists (explicit users, an
organization team, or an organization).`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			cmd.PrintErrf("Error: %v\n", err)
		}
	},
}

// NewRootCmd creates a new root command for the ghgate CLI.
func NewRootCmd() *cobra.Command {
	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		rootCmd.PrintErrf("Error binding debug flag: %v\n", err)
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd)

	return rootCmd
}
