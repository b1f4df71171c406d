package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// @title Enrollment Engine API
// @version 1.0.0
// @description Enrollment state machine, seat capacity and term rollover for school sections.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "enrollment-api",
		Short:        "Enrollment engine service",
		Long:         `Runs the enrollment HTTP API and the operator commands around it: schema migrations, term rollover and token issuing.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newRolloverCommand(),
		newTokenCommand(),
	)

	return rootCmd
}
