package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/idempotency"
	"github.com/amirasaad/ledger/pkg/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type idempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository creates the idempotency key store on db.
func NewIdempotencyRepository(db *gorm.DB) repository.IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (*idempotency.Record, error) {
	var m IdempotencyKey
	if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return recordFromModel(&m), nil
}

// Insert uses ON CONFLICT DO NOTHING so a lost race leaves the session usable.
func (r *idempotencyRepository) Insert(ctx context.Context, record *idempotency.Record) error {
	m := recordToModel(record)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("idempotency key %q: %w", record.Key, domain.ErrAlreadyExists)
	}
	return nil
}

func (r *idempotencyRepository) Replace(ctx context.Context, prev, next *idempotency.Record) (bool, error) {
	res := r.db.WithContext(ctx).Model(&IdempotencyKey{}).
		Where("idempotency_key = ? AND generation = ?", prev.Key, prev.Generation).
		Updates(map[string]any{
			"operation":    next.Operation,
			"request_hash": next.RequestHash,
			"status":       string(next.Status),
			"response":     nil,
			"generation":   prev.Generation + 1,
			"locked_until": next.LockedUntil,
			"expires_at":   next.ExpiresAt,
			"created_at":   next.CreatedAt,
			"updated_at":   next.UpdatedAt,
		})
	if res.Error != nil {
		return false, MapGormErrorToDomain(res.Error)
	}
	next.Generation = prev.Generation + 1
	return res.RowsAffected == 1, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, response []byte, expiresAt, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&IdempotencyKey{}).
		Where("idempotency_key = ? AND status = ?", key, string(idempotency.StatusPending)).
		Updates(map[string]any{
			"status":       string(idempotency.StatusCompleted),
			"response":     datatypes.JSON(response),
			"locked_until": now,
			"expires_at":   expiresAt,
			"updated_at":   now,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("pending idempotency key %q: %w", key, domain.ErrNotFound)
	}
	return nil
}

func (r *idempotencyRepository) DeletePending(ctx context.Context, key string) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Where("idempotency_key = ? AND status = ?", key, string(idempotency.StatusPending)).
			Delete(&IdempotencyKey{}).Error
	})
}

// Purge deletes expired records, keeping PENDING ones whose lock is still held.
func (r *idempotencyRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? AND (status = ? OR locked_until <= ?)", now, string(idempotency.StatusCompleted), now).
		Delete(&IdempotencyKey{})
	if res.Error != nil {
		return 0, MapGormErrorToDomain(res.Error)
	}
	return res.RowsAffected, nil
}
