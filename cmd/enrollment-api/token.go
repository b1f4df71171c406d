package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/enrollment-engine/internal/dto"
	"github.com/noah-isme/enrollment-engine/internal/models"
)

func newTokenCommand() *cobra.Command {
	var userID, role, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		Long:  `Signs an access token with the configured JWT secret. Meant for operators and local testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userRole := models.UserRole(role)
			if !userRole.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			cfg, logr, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			token, expiresAt, err := newAuthService(cfg, logr).IssueToken(userID, userRole, name)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(dto.IssueTokenResponse{
				AccessToken: token,
				ExpiresAt:   expiresAt.Format(time.RFC3339),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Subject user id (required)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStudent), "ADMIN, TEACHER or STUDENT")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
