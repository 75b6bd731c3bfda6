package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "credpass/internal/jwt_token"
)

const defaultTokenTTL = time.Hour

type tokenOutput struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn string `json:"expires_in"`
	Subject   string `json:"subject"`
}

func newTokenCmd(opts *options) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
		key     string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token for the /admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := jwttoken.New(key).Issue(subject, ttl)
			if err != nil {
				return err
			}
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), tokenOutput{
				Token:     token,
				Type:      "Bearer",
				ExpiresIn: ttl.String(),
				Subject:   subject,
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject recorded in admin logs")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token time-to-live")
	cmd.Flags().StringVar(&key, "key", opts.cfg.AdminJWTSigningKey, "signing key (defaults to ADMIN_JWT_SIGNING_KEY)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}
