package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue API tokens for operators",
	}

	var user string
	var ttl time.Duration
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Print a signed bearer token for --user",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			if cfg.Auth == nil || cfg.Auth.Jwt == nil || cfg.Auth.Jwt.Secret == "" {
				return errors.New("AUTH_JWT_SECRET is not set")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.Jwt.Expiry
			}
			now := time.Now()
			token, err := middleware.Sign(cfg.Auth.Jwt.Secret, user, jwt.MapClaims{
				"iat": now.Unix(),
				"exp": now.Add(ttl).Unix(),
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, token)
			return err
		},
	}
	sign.Flags().StringVarP(&user, "user", "u", "", "user id stored in the token")
	sign.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to AUTH_JWT_EXPIRY)")
	_ = sign.MarkFlagRequired("user")

	cmd.AddCommand(sign)
	return cmd
}
