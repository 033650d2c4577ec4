package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fitstogo/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token utilities for local testing",
	}

	var identity auth.Identity
	var ttl time.Duration
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an API bearer token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(identity.UserID) == "" {
				return fmt.Errorf("--user is required")
			}
			verifier, err := auth.NewVerifier(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := verifier.Mint(identity, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().StringVar(&identity.UserID, "user", "", "User id placed in the user_id claim")
	mint.Flags().StringVar(&identity.Email, "email", "", "Email placed in the email claim")
	mint.Flags().StringVar(&identity.Name, "name", "", "Display name")
	mint.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to auth.token_ttl_hours)")
	tokenCmd.AddCommand(mint)
	return tokenCmd
}
