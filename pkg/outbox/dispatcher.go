// Package outbox drains events written by the engine into the event bus.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/metrics"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/sony/gobreaker"
)

// Config tunes batch size, retry budget and the publish breaker.
type Config struct {
	BatchSize       int
	MaxAttempts     int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// DefaultConfig returns the dispatcher defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 100, MaxAttempts: 10, BreakerFailures: 5, BreakerTimeout: 30 * time.Second}
}

// Dispatcher publishes outbox rows at least once.
type Dispatcher struct {
	uow     repository.UnitOfWork
	bus     eventbus.Bus
	cfg     Config
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a dispatcher publishing to bus.
func NewDispatcher(uow repository.UnitOfWork, bus eventbus.Bus, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if m == nil {
		m = metrics.Discard()
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		uow:     uow,
		bus:     bus,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "outbox"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	d.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
			d.metrics.BreakerState(int(to))
		},
	})
	return d
}

// State reports the publish breaker state.
func (d *Dispatcher) State() gobreaker.State {
	return d.cb.State()
}

// RunOnce publishes one batch and returns how many rows were published.
// An open breaker stops the batch early; the remaining rows are left for
// the next run without spending an attempt.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	published, failed := 0, 0
	err := d.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		published, failed = 0, 0
		repo, err := uow.OutboxRepository()
		if err != nil {
			return err
		}
		batch, err := repo.ClaimBatch(ctx, d.cfg.BatchSize, d.cfg.MaxAttempts)
		if err != nil {
			return err
		}
		for i, msg := range batch {
			env := msg.Envelope
			_, err := d.cb.Execute(func() (any, error) {
				return nil, d.bus.Emit(ctx, env)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				d.logger.Warn("publish breaker open, deferring batch", "remaining", len(batch)-i)
				break
			}
			if err != nil {
				failed++
				d.logger.Error("failed to publish event",
					"event_id", env.ID,
					"event_type", env.Type,
					"attempt", msg.Attempts+1,
					"error", err)
				if err := repo.MarkFailed(ctx, env.ID, err.Error()); err != nil {
					return err
				}
				continue
			}
			if err := repo.MarkPublished(ctx, env.ID, d.now()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.metrics.OutboxPublished(published)
	d.metrics.OutboxFailed(failed)

	if repo, rerr := d.uow.OutboxRepository(); rerr == nil {
		if n, cerr := repo.CountPending(ctx); cerr == nil {
			d.metrics.OutboxPending(n)
		}
	}
	if published > 0 || failed > 0 {
		d.logger.Debug("outbox batch dispatched", "published", published, "failed", failed)
	}
	return published, nil
}

// Run dispatches every interval until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	d.logger.Info("outbox dispatcher started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return nil
		case <-ticker.C:
		}
	}
}
