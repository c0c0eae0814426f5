package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fieldops-cloud/internal/auth"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Manage operator API tokens",
	}

	var (
		tenantID string
		subject  string
		role     string
		ttl      time.Duration
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with AUTH_JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv("AUTH_JWT_SECRET")
			if secret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}
			token, err := auth.IssueToken(auth.Identity{
				TenantID: tenantID,
				Subject:  subject,
				Role:     auth.Role(role),
			}, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&tenantID, "tenant", "tenant-demo", "tenant id")
	issueCmd.Flags().StringVar(&subject, "subject", "", "token subject")
	issueCmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "viewer, operator or admin")
	issueCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}
