// Package app provides the entry point for the grantflow command-line
// application.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "grantflow",
	DisableAutoGenTag: true,
	Short:             "grantflow manages OAuth credentials for SaaS connector servers",
	Long: `grantflow is the credential lifecycle manager shared by the connector fleet.
It runs the interactive OAuth2 authorization-code flow for a service, stores the
resulting tokens, and hands connectors a valid access token on demand,
refreshing transparently when tokens expire.

Credentials are stored per (service, user) pair. The ENVIRONMENT variable
selects the backing store: local file storage by default, or the hosted
platform's credential API in hosted deployments.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// If no subcommand is provided, print help
		return cmd.Help()
	},
}

// NewRootCmd creates a new root command for the grantflow CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")

	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCredentialCommand())
	rootCmd.AddCommand(newServicesCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
