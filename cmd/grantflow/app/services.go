package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantflow/grantflow/pkg/services"
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services grantflow knows how to authenticate against",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, name := range services.Names() {
				dialect, err := services.Get(name)
				if err != nil {
					return err
				}
				kind := "oauth2"
				if dialect.APIKeyOnly {
					kind = "api-key"
				} else if dialect.UsePKCE {
					kind = "oauth2+pkce"
				}
				fmt.Printf("%-12s %s\n", name, kind)
			}
			return nil
		},
	}
}
