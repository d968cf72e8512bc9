package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/jobrelay/internal/auth"
	"github.com/memohai/jobrelay/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		ttl     time.Duration
		subject string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key := config.NewCredentials(cfg).APIKey()
			if key == "" {
				return errors.New("API_KEY is not configured")
			}
			token, expiresAt, err := auth.GenerateToken(subject, key, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&subject, "subject", auth.DefaultSubject, "token subject")
	return cmd
}
