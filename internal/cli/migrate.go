package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"drill-service/internal/config"
	"drill-service/internal/infra/postgres/migrations"
	"drill-service/internal/logger"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return runMigrationsWithConfig(cmd.Context(), cfg, log)
		},
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	group, err := migrations.Run(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	if group == "" {
		log.Info("database schema up to date")
		return nil
	}
	log.Info("migrations applied", zap.String("group", group))
	return nil
}
