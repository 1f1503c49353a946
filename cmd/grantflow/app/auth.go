package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/grantflow/grantflow/pkg/auth"
	"github.com/grantflow/grantflow/pkg/oauth"
)

func newAuthCmd() *cobra.Command {
	var (
		scopes      []string
		port        int
		skipBrowser bool
		headless    bool
	)

	cmd := &cobra.Command{
		Use:   "auth <service> <user-id>",
		Short: "Authenticate a user against a service",
		Long: `Run the interactive OAuth2 authorization-code flow for a service and save
the resulting credential for the given user.

A local callback listener is started on the configured port (default 8080) and
the system browser is opened to the provider's authorization page. With
--headless, the authorization URL is printed instead and the redirect URL is
read from stdin, for machines without a browser.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			serviceName, userID := args[0], args[1]

			var flowOpts []oauth.FlowOption
			if port != 0 {
				flowOpts = append(flowOpts, oauth.WithCallbackPort(port))
			}
			if skipBrowser {
				flowOpts = append(flowOpts, oauth.WithSkipBrowser())
			}
			if headless {
				flowOpts = append(flowOpts,
					oauth.WithCodeSupplier(oauth.PromptCodeSupplier(os.Stdin, os.Stdout)))
			}

			cred, err := auth.AuthenticateAndSaveCredentials(cmd.Context(), userID, serviceName, scopes, flowOpts...)
			if err != nil {
				return err
			}

			fmt.Printf("Authenticated %s for service %s", userID, serviceName)
			if cred.Scope != "" {
				fmt.Printf(" (scopes: %s)", cred.Scope)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "OAuth scopes to request (default: service-specific)")
	cmd.Flags().IntVar(&port, "port", 0, "Local callback port (default 8080, 0 auto-selects when busy)")
	cmd.Flags().BoolVar(&skipBrowser, "skip-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().BoolVar(&headless, "headless", false, "Read the redirect URL from stdin instead of running a callback listener")

	return cmd
}
