package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/eringen/studiocms/auth"
)

var (
	tokenEmail   string
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin bearer token signed with the JWT secret",
	Long: `Mints an HS256 token for local development against a self-hosted
database. The server must be running without SUPABASE_URL so tokens are
checked against SUPABASE_JWT_SECRET.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Supabase.JWTSecret == "" {
			return errors.New("SUPABASE_JWT_SECRET is not set")
		}
		if tokenEmail == "" {
			return errors.New("--email is required")
		}
		sub := tokenSubject
		if sub == "" {
			sub = uuid.NewString()
		}
		token, err := auth.IssueToken(cfg.Supabase.JWTSecret, auth.User{ID: sub, Email: tokenEmail}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "admin email to embed in the token")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "user id (default: random uuid)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
