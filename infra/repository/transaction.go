package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository using the provided *gorm.DB.
func NewTransactionRepository(db *gorm.DB) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *ledger.Transaction) error {
	m := transactionToModel(tx)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	var m Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, MapGormErrorToDomain(err))
	}
	return transactionFromModel(&m), nil
}

func (r *transactionRepository) MarkReversed(ctx context.Context, id, reversalID uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("id = ? AND reversed_by IS NULL", id).
		Update("reversed_by", reversalID)
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("transaction %s: %w", id, domain.ErrAlreadyReversed)
	}
	return nil
}

func (r *transactionRepository) ListCompletedBetween(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	var rows []Transaction
	if err := r.db.WithContext(ctx).
		Where("status = ? AND processed_at >= ? AND processed_at <= ?", string(ledger.TransactionStatusCompleted), from, to).
		Order("processed_at, id").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, *transactionFromModel(&rows[i]))
	}
	return out, nil
}
