package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/simonvc/chainledger/internal/events"
	"github.com/simonvc/chainledger/internal/hashchain"
	"github.com/simonvc/chainledger/internal/lock"
	"github.com/simonvc/chainledger/internal/observability"
	"github.com/simonvc/chainledger/internal/server"
	"github.com/simonvc/chainledger/internal/service"
	"github.com/simonvc/chainledger/internal/store"
)

// MetaHashAlgorithm is the ledger_meta key recording the chain's hash
// algorithm. A ledger never changes algorithm once it has been opened.
const MetaHashAlgorithm = "hash_algorithm"

// App is the wired component graph shared by the serve, worker and local
// CLI commands.
type App struct {
	Config    *Config
	Logger    *slog.Logger
	Store     *store.Store
	Ledger    *service.Ledger
	Metrics   *observability.Metrics
	Publisher events.Publisher

	closers []func() error
}

// New opens the store and wires the ledger with the configured lock and
// event backends. Close releases everything New opened.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	alg, err := hashchain.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return err
	}
	hasher, err := hashchain.New(alg)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	stored, err := st.EnsureMeta(ctx, MetaHashAlgorithm, string(alg))
	if err != nil {
		return err
	}
	if stored != string(alg) {
		return fmt.Errorf("ledger %s is chained with %s, configured %s", cfg.DBPath, stored, alg)
	}

	locker, err := a.newLocker(ctx)
	if err != nil {
		return err
	}

	a.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		k, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, "chainledger")
		if err != nil {
			return err
		}
		a.Publisher = k
		a.closers = append(a.closers, k.Close)
	}

	a.Ledger, err = service.New(service.Deps{
		Store:           st,
		Hasher:          hasher,
		Locker:          locker,
		Publisher:       a.Publisher,
		Metrics:         a.Metrics,
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
	})
	if err != nil {
		return err
	}

	logger.Info("ledger opened",
		slog.String("db", cfg.DBPath),
		slog.String("hash", string(alg)),
		slog.String("lock", cfg.LockBackend),
		slog.Bool("kafka", len(cfg.KafkaBrokers) > 0))
	return nil
}

func (a *App) newLocker(ctx context.Context) (lock.Locker, error) {
	cfg := a.Config
	switch cfg.LockBackend {
	case LockRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis lock backend: %w", err)
		}
		return lock.NewRedis(client, lock.DefaultKey, cfg.PostLockTTL, cfg.PostLockTimeout), nil
	case LockPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres lock backend: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("postgres lock backend: %w", err)
		}
		return lock.NewPostgres(pool, lock.DefaultKey, cfg.PostLockTimeout), nil
	default:
		return lock.NewLocal(cfg.PostLockTimeout), nil
	}
}

// Server builds the HTTP server for addr.
func (a *App) Server(addr string) *server.Server {
	return server.New(a.Ledger, addr, server.Options{
		Logger:     a.Logger,
		Metrics:    a.Metrics,
		RateLimit:  a.Config.RateLimit,
		Production: a.Config.IsProduction(),
		Timeout:    a.Config.RequestTimeout,
		Health:     a.Store.Ping,
	})
}

// AsynqRedis returns the connection options for the job queue.
func (c *Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
