package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository using the provided *gorm.DB.
func NewAccountRepository(db *gorm.DB) repository.AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *ledger.Account) error {
	now := time.Now().UTC()
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	m := accountToModel(account)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return MapGormErrorToDomain(err)
		}
		bal := AccountBalance{
			AccountID:        account.ID,
			AvailableBalance: decimal.Zero,
			Version:          0,
			LastCalculatedAt: now,
		}
		return MapGormErrorToDomain(tx.Create(&bal).Error)
	})
}

func (r *accountRepository) Get(ctx context.Context, id uuid.UUID) (*ledger.Account, error) {
	var m Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, fmt.Errorf("account %s: %w", id, MapGormErrorToDomain(err))
	}
	return accountFromModel(&m), nil
}

func (r *accountRepository) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error) {
	var rows []Account
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make(map[uuid.UUID]*ledger.Account, len(rows))
	for i := range rows {
		out[rows[i].ID] = accountFromModel(&rows[i])
	}
	return out, nil
}

func (r *accountRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&Account{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return ids, nil
}

func (r *accountRepository) update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&Account{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *accountRepository) SetStatus(ctx context.Context, id uuid.UUID, status ledger.AccountStatus) error {
	return r.update(ctx, id, map[string]any{"status": string(status)})
}

func (r *accountRepository) SetBalanceLocked(ctx context.Context, id uuid.UUID, locked bool) error {
	return r.update(ctx, id, map[string]any{"balance_locked": locked})
}
