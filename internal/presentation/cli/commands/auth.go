package commands

import (
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/application"
)

// NewAuthCmd creates the auth command.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the remote access token",
		Long: `Store or remove the bearer token for the configured remote in the OS
keychain. The token is looked up there first and then in the environment
variable named by remote.token_env.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a token in the keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			store, err := keychain(container)
			if err != nil {
				return err
			}

			if token == "" {
				secret, err := readline.Password("Token: ")
				if err != nil {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = string(secret)
			}
			token = strings.TrimSpace(token)

			endpoint := container.CredentialsEndpoint()
			if err := store.Set(endpoint, token); err != nil {
				return err
			}
			GetFormatter().Success("Token stored for %s", endpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "token to store (prompted for when empty)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := requireContainer()
			if err != nil {
				return err
			}
			store, err := keychain(container)
			if err != nil {
				return err
			}
			endpoint := container.CredentialsEndpoint()
			if err := store.Delete(endpoint); err != nil {
				return err
			}
			GetFormatter().Success("Token removed for %s", endpoint)
			return nil
		},
	}
}

type tokenStore interface {
	Set(endpoint, token string) error
	Delete(endpoint string) error
}

func keychain(container *application.Container) (tokenStore, error) {
	store := container.Credentials()
	if store == nil {
		return nil, fmt.Errorf("the keychain is disabled; set remote.keyring to true or export %s", container.Config().Remote.TokenEnv)
	}
	return store, nil
}
