// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/parlance-ai/parlance/internal/config"
)

// serviceName labels logs and the reset mail sender.
const serviceName = "parlance"

// NewRootCmd creates the root command for the Parlance CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parlance",
		Short: "Parlance - account and session service",
		Long: `Parlance serves user accounts for the chat assistant: signup, login,
password changes and emailed password resets, with signed session tokens.`,
		SilenceUsage: true,
	}

	// Every subcommand reads the same layered configuration.
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig layers defaults, file, environment and the command's flags.
func loadConfig(cmd *cobra.Command, partial bool) (*config.Config, error) {
	file, err := cmd.Flags().GetString(config.ConfigFlag)
	if err != nil {
		return nil, err
	}
	return config.Load(config.LoadOptions{File: file, Flags: cmd.Flags(), Partial: partial})
}
