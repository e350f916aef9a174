package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/berfenger/teslemetry2mqtt/internal/core/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Validate the access token",
	Long:  `Fetches the token metadata and prints its region and scopes, or the reason the token was rejected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := initConfig()
		if err != nil {
			return fmt.Errorf("config errors: %w", err)
		}
		logger := newLogger(zap.NewAtomicLevelAt(cfg.LogLevel))
		defer logger.Sync()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Teslemetry.RequestTimeout())
		defer cancel()

		metadata, err := fleetClient(cfg, logger).Metadata(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, service.AuthErrorKey(err))
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "region: %s\nscopes: %s\n", metadata.Region, strings.Join(metadata.Scopes, " "))
		return nil
	},
}
