package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"drill-service/internal/app"
	"drill-service/internal/config"
	"drill-service/internal/infra/rabbitmq"
	"drill-service/internal/logger"
	"drill-service/internal/metrics"
	"drill-service/internal/scheduler"
	transport "drill-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the drill server and timeout sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	collector := metrics.NewCollector()
	progression := app.NewProgressionService(b.progressions, log.Named("progression"))
	boards := app.NewLeaderboardService(b.attempts, b.progressions, b.stats)
	hub := app.NewLeaderboardHub(boards, 0, log.Named("hub"))

	publishers := app.FanoutPublisher{hub}
	if cfg.RabbitMQ.URL != "" {
		rmq, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, log.Named("rabbitmq"))
		if err != nil {
			return err
		}
		defer rmq.Close() //nolint:errcheck
		publishers = append(publishers, rmq)
	}

	engine := app.NewDrillEngine(b.cache, b.attempts, progression, b.locker,
		app.WithPublisher(publishers),
		app.WithStats(b.stats),
		app.WithMetrics(collector),
		app.WithLogger(log.Named("engine")),
	)
	catalog := app.NewCatalogService(b.definitions, b.cache, log.Named("catalog")).WithStats(b.stats)

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret)
	if auth.Insecure() {
		log.Warn("auth.jwt_secret not set, trusting X-User-ID headers")
	}
	router := transport.NewRouter(transport.Deps{
		Engine:       engine,
		Catalog:      catalog,
		Progression:  progression,
		Leaderboards: boards,
		Hub:          hub,
		Auth:         auth,
		Metrics:      collector,
		Log:          log.Named("http"),
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
	}
	sweeper := scheduler.NewTimeoutSweeper(engine, cfg.Scheduler.TimeoutSweep, cfg.Scheduler.Grace, log.Named("sweeper"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting drill service", zap.String("addr", server.Addr), zap.String("definitions", cfg.Definitions.Source))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
