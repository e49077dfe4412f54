package main

import (
	"chat-gateway/auth"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 development token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.JwtSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to sign tokens")
			}
			var audience []string
			if config.JwtAudience != "" {
				audience = []string{config.JwtAudience}
			}
			token, err := auth.GenerateToken([]byte(config.JwtSecret), config.JwtIssuer, audience, subject, roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, the user id")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Roles claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
