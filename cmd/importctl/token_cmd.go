package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		tenantID   string
		operatorID string
		role       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator access token signed with auth.jwt_secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := auth.NewTokenService(cfg.Auth.JWTSecret).IssueToken(tenantID, operatorID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id (required)")
	cmd.Flags().StringVar(&operatorID, "operator", "", "Operator id (required)")
	cmd.Flags().StringVar(&role, "role", "admin", "Operator role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
