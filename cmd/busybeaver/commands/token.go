package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "busybeaver/internal/jwt_token"
)

func tokenCmd() *cobra.Command {
	var (
		ttl   time.Duration
		scope string
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token signed with BUSYBEAVER_SIGNING_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Server.SigningKey == "" {
				return errors.New("BUSYBEAVER_SIGNING_KEY is not set")
			}
			tok, err := jwttoken.NewJWTService(cfg.Server.SigningKey, jwttoken.Issuer).GenerateToken(args[0], scope, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&scope, "scope", jwttoken.ScopeAPI, "scope claim")
	return cmd
}
