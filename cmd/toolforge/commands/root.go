// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Toolforge - Toolforge automates generation and validation of idempotent
installation scripts for command-line tools. A worklist drives each tool
through script generation, static checks, and container validation, and
validated tools can be composed into one shared-dependency image.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd constructs the toolforge root Cobra command.
func NewRootCmd() *cobra.Command {
	version := os.Getenv("TOOLFORGE_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "toolforge",
		Short:         "Toolforge - installation script generation and validation pipeline",
		Long:          "Toolforge turns a worklist of command-line tools into validated, idempotent installation scripts and composed multi-tool images.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "path to YAML configuration file")
	cmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of Toolforge",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Toolforge version %s\n", version)
		},
	})

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newComposeCmd())

	return cmd
}
