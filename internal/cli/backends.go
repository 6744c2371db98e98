package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"drill-service/internal/app"
	"drill-service/internal/config"
	"drill-service/internal/infra/memory"
	mongostore "drill-service/internal/infra/mongo"
	"drill-service/internal/infra/postgres"
	redisstore "drill-service/internal/infra/redis"
)

// backends holds the storage implementations selected by configuration.
// Unset connection settings fall back to the in-process implementations.
type backends struct {
	definitions  app.DefinitionStore
	cache        app.DefinitionCache
	attempts     app.AttemptRepository
	progressions app.ProgressionRepository
	locker       app.Locker
	stats        app.DrillStatsRecorder

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		p, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		pool = p
		b.closers = append(b.closers, pool.Close)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}

	defs, err := openDefinitionStore(ctx, cfg, pool, b, log)
	if err != nil {
		return nil, err
	}
	b.definitions = defs

	if redisClient != nil {
		b.cache = redisstore.NewDefinitionRepository(redisClient, defs, cfg.Definitions.TTL)
		b.locker = redisstore.NewLocker(redisClient, cfg.Redis.LockTTL)
		b.stats = redisstore.NewStatsRecorder(redisClient)
	} else {
		b.cache = memory.NewDefinitionRepository(defs, cfg.Definitions.TTL)
		b.locker = memory.NewKeyedLocker()
		b.stats = memory.NewStatsRecorder()
	}

	if pool != nil {
		b.attempts = postgres.NewAttemptStore(pool)
		b.progressions = postgres.NewProgressionStore(pool)
	} else {
		log.Warn("postgres not configured, attempts and progressions are kept in memory")
		b.attempts = memory.NewAttemptStore()
		b.progressions = memory.NewProgressionStore()
	}

	ok = true
	return b, nil
}

func openDefinitionStore(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, b *backends, log *zap.Logger) (app.DefinitionStore, error) {
	switch cfg.Definitions.Source {
	case config.SourcePostgres:
		if pool == nil {
			return nil, fmt.Errorf("definitions.source=postgres requires postgres.url")
		}
		return postgres.NewDefinitionStore(pool), nil

	case config.SourceMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		b.closers = append(b.closers, func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(shutdown)
		})
		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		store := mongostore.NewDefinitionStore(client.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return store, nil

	default:
		if cfg.Definitions.Fixtures == "" {
			return memory.NewDefinitionStore(), nil
		}
		drills, err := memory.LoadFixtures(cfg.Definitions.Fixtures)
		if err != nil {
			return nil, err
		}
		log.Info("loaded drill fixtures", zap.String("path", cfg.Definitions.Fixtures), zap.Int("drills", len(drills)))
		return memory.NewDefinitionStore(drills...), nil
	}
}
