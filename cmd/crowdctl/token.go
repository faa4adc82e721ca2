package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crowdfund/internal/domain"
	"crowdfund/internal/infra"
	"crowdfund/internal/middleware"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}

	var (
		ttl    time.Duration
		locale string
	)
	issue := &cobra.Command{
		Use:   "issue <address>",
		Short: "Sign a bearer token for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			cfg, err := infra.LoadConfig()
			if err != nil {
				return err
			}
			now := time.Now()
			token, err := middleware.SignJWT(cfg.JWTSecret, cfg.JWTIssuer, addr, locale, ttl, now)
			if err != nil {
				return err
			}
			info(cmd.ErrOrStderr()).Printfln("token for %s expires %s", addr.Hex(), now.Add(ttl).UTC().Format(time.RFC3339))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	issue.Flags().StringVar(&locale, "locale", "", "preferred message locale (en, id, vi)")

	cmd.AddCommand(issue)
	return cmd
}
