package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/enrollment-engine/internal/models"
)

func newRolloverCommand() *cobra.Command {
	var (
		actor      string
		drainAfter time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Archive the current term and close enrollment",
		Long: `Runs the term rollover once: every ACTIVE enrollment is archived, then the term
window and every student's eligibility are disabled. Lockdown steps that keep failing are
retried in the background until --drain elapses.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newApplication(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			app.queue.Start(ctx)
			result, runErr := app.rollover.RolloverTerm(ctx, models.Actor{UserID: actor, Role: models.RoleAdmin, UserAgent: "enrollment-api/cli"})

			if result != nil && len(result.PendingSteps) > 0 {
				app.logger.Warn("waiting for queued lockdown steps", zap.Strings("steps", result.PendingSteps), zap.Duration("timeout", drainAfter))
				drainCtx, cancel := context.WithTimeout(ctx, drainAfter)
				if err := app.queue.Drain(drainCtx); err != nil {
					app.logger.Error("lockdown retries did not finish", zap.Error(err))
				}
				cancel()
			}

			if result != nil {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "User id recorded in the audit log")
	cmd.Flags().DurationVar(&drainAfter, "drain", 2*time.Minute, "How long to wait for background lockdown retries")
	return cmd
}
