package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository creates the reconciliation store on db.
func NewReconciliationRepository(db *gorm.DB) repository.ReconciliationRepository {
	return &reconciliationRepository{db: db}
}

func (r *reconciliationRepository) Create(ctx context.Context, rec *reconciliation.Reconciliation) error {
	m := reconciliationToModel(rec)
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&m).Error
	})
}

func (r *reconciliationRepository) get(ctx context.Context, id uuid.UUID, lock bool) (*reconciliation.Reconciliation, error) {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var m Reconciliation
	if err := q.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, fmt.Errorf("reconciliation %s: %w", id, MapGormErrorToDomain(err))
	}
	return reconciliationFromModel(&m), nil
}

func (r *reconciliationRepository) Get(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	return r.get(ctx, id, false)
}

func (r *reconciliationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	return r.get(ctx, id, true)
}

func (r *reconciliationRepository) Update(ctx context.Context, rec *reconciliation.Reconciliation) error {
	m := reconciliationToModel(rec)
	res := r.db.WithContext(ctx).Model(&Reconciliation{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"status":          m.Status,
		"total_items":     m.TotalItems,
		"matched_items":   m.MatchedItems,
		"unmatched_items": m.UnmatchedItems,
		"discrepancy":     m.Discrepancy,
		"closed_by":       m.ClosedBy,
		"closed_at":       m.ClosedAt,
		"updated_at":      m.UpdatedAt,
	})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reconciliation %s: %w", rec.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *reconciliationRepository) AddItems(ctx context.Context, items []reconciliation.Item) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]ReconciliationItem, 0, len(items))
	for i := range items {
		rows = append(rows, itemToModel(&items[i]))
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).CreateInBatches(&rows, 200).Error
	})
}

func (r *reconciliationRepository) Items(
	ctx context.Context,
	reconciliationID uuid.UUID,
	filter repository.ItemFilter,
) ([]reconciliation.Item, error) {
	q := r.db.WithContext(ctx).Where("reconciliation_id = ?", reconciliationID)
	if filter.Status != nil {
		q = q.Where("match_status = ?", string(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var rows []ReconciliationItem
	if err := q.Order("line, id").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]reconciliation.Item, 0, len(rows))
	for i := range rows {
		out = append(out, itemFromModel(&rows[i]))
	}
	return out, nil
}

func (r *reconciliationRepository) GetItem(ctx context.Context, reconciliationID, itemID uuid.UUID) (*reconciliation.Item, error) {
	var m ReconciliationItem
	if err := r.db.WithContext(ctx).
		Where("id = ? AND reconciliation_id = ?", itemID, reconciliationID).
		Take(&m).Error; err != nil {
		return nil, fmt.Errorf("item %s: %w", itemID, MapGormErrorToDomain(err))
	}
	item := itemFromModel(&m)
	return &item, nil
}

func (r *reconciliationRepository) UpdateItem(ctx context.Context, item *reconciliation.Item, expect reconciliation.MatchStatus) error {
	m := itemToModel(item)
	res := r.db.WithContext(ctx).Model(&ReconciliationItem{}).
		Where("id = ? AND match_status = ?", item.ID, string(expect)).
		Updates(map[string]any{
			"match_status":             m.MatchStatus,
			"matched_transaction_id":   m.MatchedTransactionID,
			"suggested_transaction_id": m.SuggestedTransactionID,
			"match_confidence":         m.MatchConfidence,
			"match_details":            m.MatchDetails,
			"match_reason":             m.MatchReason,
			"updated_by":               m.UpdatedBy,
			"updated_at":               m.UpdatedAt,
		})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("item %s is no longer %s: %w", item.ID, expect, domain.ErrAlreadyMatched)
	}
	return nil
}

// Claim inserts with ON CONFLICT DO NOTHING so a rejected claim leaves the
// surrounding transaction usable.
func (r *reconciliationRepository) Claim(ctx context.Context, reconciliationID, transactionID, itemID uuid.UUID) error {
	claim := ReconciliationClaim{
		ReconciliationID: reconciliationID,
		TransactionID:    transactionID,
		ItemID:           itemID,
		CreatedAt:        time.Now().UTC(),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var holder ReconciliationClaim
	err := r.db.WithContext(ctx).
		Where("reconciliation_id = ? AND transaction_id = ?", reconciliationID, transactionID).
		Take(&holder).Error
	if err == nil && holder.ItemID == itemID {
		return nil
	}
	if err != nil && !errors.Is(MapGormErrorToDomain(err), domain.ErrNotFound) {
		return MapGormErrorToDomain(err)
	}
	return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrAlreadyClaimed)
}

func (r *reconciliationRepository) ReleaseClaim(ctx context.Context, reconciliationID, itemID uuid.UUID) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Where("reconciliation_id = ? AND item_id = ?", reconciliationID, itemID).
			Delete(&ReconciliationClaim{}).Error
	})
}

func (r *reconciliationRepository) ClaimedTransactions(ctx context.Context, reconciliationID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	var rows []ReconciliationClaim
	if err := r.db.WithContext(ctx).Where("reconciliation_id = ?", reconciliationID).Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, c := range rows {
		out[c.TransactionID] = c.ItemID
	}
	return out, nil
}
