package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/wikisync/internal/presentation/cli/output"
	"github.com/jbctechsolutions/wikisync/internal/remoteserver"
)

// TokenResult is the JSON form of `token issue`.
type TokenResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Scopes    []string  `json:"scopes"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// NewTokenCmd creates the token command.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue access tokens for 'wikisync serve'",
	}

	cmd.AddCommand(newTokenIssueCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject string
		scopes  []string
		ttl     time.Duration
		secret  string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token",
		Long: `Sign an HS256 bearer token with the server secret. The token is printed
to stdout; store it on clients with 'wikisync auth login'.`,
		Example: `  # Read-only token valid for a week
  wikisync token issue --subject reader --scope docs:read --ttl 168h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := GetFormatter()

			if secret == "" {
				cfg, _, err := loadConfig(globalFlags.ConfigFile)
				if err != nil {
					return err
				}
				secret = cfg.Server.JWTSecret
			}
			if secret == "" {
				return fmt.Errorf("no secret: set server.jwt_secret or pass --secret")
			}
			for _, s := range scopes {
				if s != remoteserver.ScopeRead && s != remoteserver.ScopeWrite {
					return fmt.Errorf("unknown scope %q: must be %s or %s", s, remoteserver.ScopeRead, remoteserver.ScopeWrite)
				}
			}

			now := time.Now()
			token, err := remoteserver.IssueToken(secret, subject, scopes, ttl, now)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			result := TokenResult{Token: token, Subject: subject, Scopes: scopes}
			if ttl > 0 {
				result.ExpiresAt = now.Add(ttl).UTC()
			}
			if formatter.Format() == output.FormatJSON {
				return formatter.JSON(result)
			}
			formatter.Println("%s", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "wikisync", "token subject, used for rate limiting")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{remoteserver.ScopeRead, remoteserver.ScopeWrite}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime (0 for no expiry)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default: server.jwt_secret)")

	return cmd
}
