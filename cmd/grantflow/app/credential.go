package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grantflow/grantflow/pkg/credentials"
)

func newCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored credentials",
		Long:  "The credential command provides subcommands to list and delete stored credentials.",
	}

	cmd.AddCommand(
		newCredentialListCommand(),
		newCredentialDeleteCommand(),
	)

	return cmd
}

func newCredentialListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <service>",
		Short: "List users with stored credentials for a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.NewStore()
			if err != nil {
				return err
			}

			users, err := store.ListCredentials(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Printf("No credentials stored for %s\n", args[0])
				return nil
			}
			for _, user := range users {
				fmt.Println(user)
			}
			return nil
		},
	}
}

func newCredentialDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <service> <user-id>",
		Short: "Delete the stored credential for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credentials.NewStore()
			if err != nil {
				return err
			}

			if err := store.DeleteCredential(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Deleted credential for %s/%s\n", args[0], args[1])
			return nil
		},
	}
}
