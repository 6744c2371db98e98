package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"drill-service/internal/app"
	"drill-service/internal/config"
	"drill-service/internal/infra/memory"
	"drill-service/internal/logger"
)

// NewSeedCmd loads drill fixtures into the configured definition store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var fixtures string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load drill definitions from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if fixtures == "" {
				fixtures = cfg.Definitions.Fixtures
			}
			log, err := logger.New(cfg.Env)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			ctx := cmd.Context()
			if cfg.Definitions.Source == config.SourcePostgres {
				if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
					return err
				}
			}
			// The static source already reads the fixtures; seeding only
			// validates them.
			cfg.Definitions.Fixtures = ""
			b, err := openBackends(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer b.Close()

			n, err := seedDefinitions(ctx, b.definitions, fixtures)
			if err != nil {
				return err
			}
			log.Info("drills seeded", zap.Int("count", n), zap.String("source", cfg.Definitions.Source))
			return nil
		},
	}
	cmd.Flags().StringVar(&fixtures, "file", "", "fixture file (defaults to definitions.fixtures)")
	return cmd
}

func seedDefinitions(ctx context.Context, store app.DefinitionStore, path string) (int, error) {
	drills, err := memory.LoadFixtures(path)
	if err != nil {
		return 0, err
	}
	for _, d := range drills {
		if err := store.SaveDrill(ctx, d); err != nil {
			return 0, err
		}
	}
	return len(drills), nil
}
