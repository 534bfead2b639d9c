package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"dbot/internal/auth"
	"dbot/internal/config"
)

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg config.App) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "tokengen --subject <name> [--ttl 24h]",
		Short: "Mint a bearer token for the ops API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--subject is required")
			}
			if ttl <= 0 {
				ttl = cfg.AccessTTL
			}
			tok, err := auth.Issue(subject, cfg.JWTIssuer, cfg.JWTSigningKey, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires_at=%s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, usually the operator name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ACCESS_TTL)")
	return cmd
}
