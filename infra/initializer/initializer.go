// Package initializer builds the runtime dependencies from configuration.
package initializer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/amirasaad/ledger/infra"
	infraeventbus "github.com/amirasaad/ledger/infra/eventbus"
	"github.com/amirasaad/ledger/infra/lock"
	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/pkg/config"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Runtime is what the entry points need beyond app.Deps.
type Runtime struct {
	Deps     *app.Deps
	Registry *prometheus.Registry
	// Consumer is set when the bus reads from Redis Streams.
	Consumer *infraeventbus.RedisEventBus
	closers  []func() error
}

// Close releases connections in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// InitializeDependencies initializes all the application dependencies.
func InitializeDependencies(cfg *config.App) (*Runtime, error) {
	logger := setupLogger(cfg.Log)
	rt := &Runtime{Deps: &app.Deps{Logger: logger}}

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		rt.closers = append(rt.closers, sqlDB.Close)
	}
	var opts []infrarepo.Option
	if cfg.DB != nil && cfg.DB.LockTimeout > 0 {
		opts = append(opts, infrarepo.WithLockTimeout(cfg.DB.LockTimeout))
	}
	rt.Deps.Uow = infrarepo.NewUoW(db, opts...)

	var client *redis.Client
	if needsRedis(cfg) {
		client, err = newRedisClient(cfg.Redis)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
	}

	rt.Deps.Locker, err = newLocker(cfg, client)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Deps.EventBus, err = newEventBus(cfg, client, logger)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if rb, ok := rt.Deps.EventBus.(*infraeventbus.RedisEventBus); ok {
		rt.Consumer = rb
	}

	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Deps.Registry = rt.Registry

	logger.Info("Dependencies initialized",
		"db_driver", cfg.DB.Driver,
		"locker", fmt.Sprintf("%T", rt.Deps.Locker),
		"bus", fmt.Sprintf("%T", rt.Deps.EventBus))
	return rt, nil
}

func needsRedis(cfg *config.App) bool {
	return (cfg.Idempotency != nil && cfg.Idempotency.Locker == "redis") ||
		(cfg.Outbox != nil && cfg.Outbox.Bus == "redis")
}

func newRedisClient(cfg *config.Redis) (*redis.Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("REDIS_URL is required for the redis locker or bus")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func newLocker(cfg *config.App, client redis.Cmdable) (idempotency.Locker, error) {
	kind := "memory"
	if cfg.Idempotency != nil && cfg.Idempotency.Locker != "" {
		kind = cfg.Idempotency.Locker
	}
	switch kind {
	case "memory":
		return lock.NewMemoryLocker(), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis locker requires a redis client")
		}
		prefix := "ledger:"
		if cfg.Redis != nil && cfg.Redis.KeyPrefix != "" {
			prefix = cfg.Redis.KeyPrefix
		}
		return lock.NewRedisLocker(client, prefix+"idem:"), nil
	default:
		return nil, fmt.Errorf("unsupported IDEMPOTENCY_LOCKER %q", kind)
	}
}

func newEventBus(cfg *config.App, client redis.Cmdable, logger *slog.Logger) (eventbus.Bus, error) {
	kind := "memory"
	if cfg.Outbox != nil && cfg.Outbox.Bus != "" {
		kind = cfg.Outbox.Bus
	}
	switch kind {
	case "memory":
		return infraeventbus.NewWithMemory(logger), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis bus requires a redis client")
		}
		host, _ := os.Hostname()
		return infraeventbus.NewWithRedis(client, infraeventbus.RedisConfig{
			Stream:   cfg.Outbox.Stream,
			Group:    cfg.Outbox.Group,
			Consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
			MaxLen:   100_000,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported OUTBOX_BUS %q", kind)
	}
}
