package main

import (
	"fmt"
	"time"

	"github.com/pedjoni/idiorag/internal/auth"
	"github.com/pedjoni/idiorag/internal/config"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		user  string
		email string
		ttl   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			authenticator, err := auth.NewAuthenticator(cfg.Auth)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := authenticator.Issue(user, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "Optional email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
