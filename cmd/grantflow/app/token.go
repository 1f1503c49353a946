package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grantflow/grantflow/pkg/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		full   bool
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "token <service> <user-id>",
		Short: "Print a valid access token for a user",
		Long: `Print a valid access token for the given service and user, refreshing the
stored credential first if it has expired. This is the same path connectors
take on every tool call, so it is also useful to verify a stored credential
still works.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceName, userID := args[0], args[1]

			if full {
				cred, err := auth.GetFullCredentials(cmd.Context(), userID, serviceName, apiKey)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(cred)
			}

			token, err := auth.GetCredentials(cmd.Context(), userID, serviceName, apiKey)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Print the full credential bundle as JSON")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Tenant API key for the hosted credential store")

	return cmd
}
