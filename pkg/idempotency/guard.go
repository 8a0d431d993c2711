// Package idempotency makes money-moving requests safe to retry. A caller
// supplies a key; the guard records the request hash and the final response
// and replays it for retries of the same request.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/idempotency"
	"github.com/amirasaad/ledger/pkg/repository"
)

// MaxKeyLength bounds caller-supplied keys.
const MaxKeyLength = 255

// Locker serializes concurrent requests that carry the same key.
type Locker interface {
	// TryLock takes key for ttl without waiting. ok is false when another
	// holder has it. The returned release func is safe to call once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// Config controls record and lock lifetimes.
type Config struct {
	// TTL is how long a completed response stays replayable.
	TTL time.Duration
	// LockTTL is how long a PENDING record blocks others before it is
	// considered abandoned.
	LockTTL time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour, LockTTL: 30 * time.Second}
}

// Ticket is the outcome of Begin. A Fresh ticket must be finished with
// Commit or Abort; a replay carries the stored Response.
type Ticket struct {
	Key      string
	Fresh    bool
	Response []byte

	release func(context.Context) error
}

// Guard implements begin/commit/abort over an IdempotencyRepository.
type Guard struct {
	uow    repository.UnitOfWork
	locker Locker
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Guard.
func New(uow repository.UnitOfWork, locker Locker, cfg Config, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &Guard{
		uow:    uow,
		locker: locker,
		cfg:    cfg,
		logger: logger.With("component", "idempotency"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ValidateKey rejects empty or oversized keys.
func ValidateKey(key string) error {
	if key == "" {
		return domain.NewValidationError("idempotency_key", "must not be empty")
	}
	if len(key) > MaxKeyLength {
		return domain.NewValidationError("idempotency_key", fmt.Sprintf("must be at most %d characters", MaxKeyLength))
	}
	return nil
}

// Begin claims key for a request identified by requestHash.
//
// It returns a replay ticket when a completed response for the same hash is
// stored, ErrIdempotencyKeyConflict when the key was used for a different
// request, and ErrIdempotencyInProgress while another caller holds the key.
func (g *Guard) Begin(ctx context.Context, key, operation, requestHash string) (*Ticket, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	log := g.logger.With("idempotency_key", key, "operation", operation)

	release, ok, err := g.locker.TryLock(ctx, key, g.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, domain.ErrIdempotencyInProgress)
	}

	ticket, err := g.begin(ctx, key, operation, requestHash)
	if err != nil || !ticket.Fresh {
		if relErr := release(ctx); relErr != nil {
			log.Warn("failed to release idempotency lock", "error", relErr)
		}
		if err != nil {
			return nil, err
		}
		log.Info("replaying stored response")
		return ticket, nil
	}
	ticket.release = release
	return ticket, nil
}

func (g *Guard) begin(ctx context.Context, key, operation, requestHash string) (*Ticket, error) {
	repo, err := g.uow.IdempotencyRepository()
	if err != nil {
		return nil, err
	}
	now := g.now()
	next := &idempotency.Record{
		Key:         key,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      idempotency.StatusPending,
		LockedUntil: now.Add(g.cfg.LockTTL),
		ExpiresAt:   now.Add(g.cfg.TTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := repo.Get(ctx, key)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		err = repo.Insert(ctx, next)
		if err == nil {
			return &Ticket{Key: key, Fresh: true}, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		// Lost an insert race with another process.
		if existing, err = repo.Get(ctx, key); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if existing.Expired(now) {
		return g.takeOver(ctx, repo, existing, next)
	}
	if existing.RequestHash != requestHash || existing.Operation != operation {
		return nil, fmt.Errorf("key %q: %w", key, domain.ErrIdempotencyKeyConflict)
	}
	if existing.Status == idempotency.StatusCompleted {
		return &Ticket{Key: key, Fresh: false, Response: existing.Response}, nil
	}
	if existing.Abandoned(now) {
		g.logger.Warn("taking over abandoned idempotency key", "idempotency_key", key, "locked_until", existing.LockedUntil)
		return g.takeOver(ctx, repo, existing, next)
	}
	return nil, fmt.Errorf("key %q: %w", key, domain.ErrIdempotencyInProgress)
}

func (g *Guard) takeOver(ctx context.Context, repo repository.IdempotencyRepository, prev, next *idempotency.Record) (*Ticket, error) {
	replaced, err := repo.Replace(ctx, prev, next)
	if err != nil {
		return nil, err
	}
	if !replaced {
		return nil, fmt.Errorf("key %q: %w", prev.Key, domain.ErrIdempotencyInProgress)
	}
	return &Ticket{Key: prev.Key, Fresh: true}, nil
}

// Complete stores response for a fresh ticket through uow, so the caller can
// persist it in the same unit of work as the side effects it describes. A
// nil uow uses the guard's own. The key lock stays held until Release.
func (g *Guard) Complete(ctx context.Context, uow repository.UnitOfWork, t *Ticket, response []byte) error {
	if t == nil || !t.Fresh {
		return nil
	}
	if uow == nil {
		uow = g.uow
	}
	repo, err := uow.IdempotencyRepository()
	if err != nil {
		return err
	}
	now := g.now()
	return repo.Complete(ctx, t.Key, response, now.Add(g.cfg.TTL), now)
}

// Commit stores response and releases the key.
func (g *Guard) Commit(ctx context.Context, t *Ticket, response []byte) error {
	if err := g.Complete(ctx, nil, t, response); err != nil {
		return err
	}
	g.Release(ctx, t)
	return nil
}

// Abort removes the pending record so a retry can start cleanly, then
// releases the key.
func (g *Guard) Abort(ctx context.Context, t *Ticket) error {
	if t == nil || !t.Fresh {
		return nil
	}
	defer g.Release(ctx, t)
	repo, err := g.uow.IdempotencyRepository()
	if err != nil {
		return err
	}
	return repo.DeletePending(ctx, t.Key)
}

// Release drops the in-flight lock of a fresh ticket. Calling it twice is harmless.
func (g *Guard) Release(ctx context.Context, t *Ticket) {
	if t == nil || t.release == nil {
		return
	}
	release := t.release
	t.release = nil
	if err := release(ctx); err != nil {
		g.logger.Warn("failed to release idempotency lock", "idempotency_key", t.Key, "error", err)
	}
}

// Purge deletes expired records.
func (g *Guard) Purge(ctx context.Context) (int64, error) {
	repo, err := g.uow.IdempotencyRepository()
	if err != nil {
		return 0, err
	}
	n, err := repo.Purge(ctx, g.now())
	if err != nil {
		return 0, err
	}
	g.logger.Info("purged expired idempotency keys", "count", n)
	return n, nil
}
