// Package bootstrap opens the configured backends for the server and operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/earn-hire/internal/config"
	"github.com/and161185/earn-hire/internal/crypto"
	"github.com/and161185/earn-hire/internal/docstore"
	memorystore "github.com/and161185/earn-hire/internal/docstore/memory"
	mongostore "github.com/and161185/earn-hire/internal/docstore/mongo"
	"github.com/and161185/earn-hire/internal/docstore/postgres"
	"github.com/and161185/earn-hire/internal/limiter"
	"github.com/and161185/earn-hire/internal/migrate"
	"github.com/and161185/earn-hire/internal/repository"
	"github.com/and161185/earn-hire/internal/repository/docrepo"
)

// Backends are the opened stores. Close releases them in reverse order.
type Backends struct {
	Docs  docstore.Store
	Pool  *pgxpool.Pool
	Redis *redis.Client
	Ping  func(ctx context.Context) error

	closers []func()
}

// Close releases every opened connection.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open connects the document store and, when configured, Redis.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Backends, error) {
	b := &Backends{Ping: func(context.Context) error { return nil }}

	switch cfg.Store {
	case config.BackendPostgres:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		b.Pool = pool
		db := &postgres.DB{Pool: pool}
		b.closers = append(b.closers, db.Close)
		b.Docs = postgres.NewStore(db)
		b.Ping = db.Ping
	case config.BackendMongo:
		ms, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		b.closers = append(b.closers, func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Close(cctx); err != nil {
				log.Warn("mongo disconnect", zap.Error(err))
			}
		})
		if err := ms.EnsureIndexes(ctx, repository.UserIDField,
			repository.EntitlementsCollection, repository.RewardsCollection); err != nil {
			b.Close()
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		b.Docs = ms
		b.Ping = ms.Ping
	default:
		log.Warn("using in-memory document store; data is lost on restart")
		b.Docs = memorystore.New()
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		b.Redis = rdb
		b.closers = append(b.closers, func() { _ = rdb.Close() })
	}
	return b, nil
}

// LimiterStore returns the claim limiter backend named by cfg.LimiterStore and,
// for stores that need it, a sweeper.
func (b *Backends) LimiterStore(cfg config.Config, lc limiter.Config) (limiter.Store, limiter.Sweeper, error) {
	switch cfg.LimiterStore {
	case config.BackendRedis:
		if b.Redis == nil {
			return nil, nil, fmt.Errorf("limiter store redis: no redis client")
		}
		return limiter.NewRedisStore(b.Redis, "", lc.Retention()), nil, nil
	case config.BackendPostgres:
		if b.Pool == nil {
			return nil, nil, fmt.Errorf("limiter store postgres: no pool")
		}
		s := limiter.NewPG(b.Pool, lc.Retention())
		return s, s, nil
	default:
		s := limiter.NewMemoryStore(lc.Retention())
		return s, s, nil
	}
}

// Repositories builds the entitlement and reward repositories over b.Docs,
// sealing profile text when cfg.DataKey is set.
func (b *Backends) Repositories(cfg config.Config) (*docrepo.EntitlementRepo, *docrepo.RewardRepo, error) {
	ents := docrepo.NewEntitlementRepo(b.Docs, nil)
	if cfg.DataKey != "" {
		sealer, err := crypto.NewSealer(crypto.KeyFromSecret([]byte(cfg.DataKey), []byte(cfg.DataKeySalt)))
		if err != nil {
			return nil, nil, err
		}
		ents.WithSealer(sealer)
	}
	return ents, docrepo.NewRewardRepo(b.Docs), nil
}
