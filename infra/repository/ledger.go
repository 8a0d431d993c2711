package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates the journal and balance store on db.
func NewLedgerRepository(db *gorm.DB) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

// sortedUnique returns ids deduplicated in ascending byte order, which is
// also the canonical string order of a UUID.
func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func (r *ledgerRepository) LockBalances(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ledger.Balance, error) {
	locked := make(map[uuid.UUID]*ledger.Balance, len(ids))
	for _, id := range sortedUnique(ids) {
		var m AccountBalance
		err := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Where("account_id = ?", id).
			Take(&m).Error
		if err != nil {
			return nil, fmt.Errorf("lock balance %s: %w", id, MapGormErrorToDomain(err))
		}
		locked[id] = balanceFromModel(&m)
	}
	return locked, nil
}

func (r *ledgerRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error) {
	var m AccountBalance
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&m).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return balanceFromModel(&m), nil
}

func (r *ledgerRepository) ListBalances(ctx context.Context) ([]ledger.Balance, error) {
	var rows []AccountBalance
	if err := r.db.WithContext(ctx).Order("account_id").Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Balance, 0, len(rows))
	for i := range rows {
		out = append(out, *balanceFromModel(&rows[i]))
	}
	return out, nil
}

func (r *ledgerRepository) UpdateBalance(
	ctx context.Context,
	accountID uuid.UUID,
	delta decimal.Decimal,
	expectedVersion int64,
	lastTransactionID uuid.UUID,
) (*ledger.Balance, error) {
	var current AccountBalance
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Take(&current).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("account %s at version %d, expected %d: %w",
			accountID, current.Version, expectedVersion, domain.ErrStaleVersion)
	}

	now := time.Now().UTC()
	next := AccountBalance{
		AccountID:         accountID,
		AvailableBalance:  current.AvailableBalance.Add(delta),
		LastTransactionID: &lastTransactionID,
		Version:           expectedVersion + 1,
		LastCalculatedAt:  now,
	}
	res := r.db.WithContext(ctx).Model(&AccountBalance{}).
		Where("account_id = ? AND version = ?", accountID, expectedVersion).
		Updates(map[string]any{
			"available_balance":   next.AvailableBalance,
			"last_transaction_id": lastTransactionID,
			"version":             next.Version,
			"last_calculated_at":  now,
		})
	if res.Error != nil {
		return nil, MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrStaleVersion)
	}
	return balanceFromModel(&next), nil
}

func (r *ledgerRepository) OverwriteBalance(
	ctx context.Context,
	accountID uuid.UUID,
	available decimal.Decimal,
	lastTransactionID *uuid.UUID,
	at time.Time,
) error {
	updates := map[string]any{
		"available_balance":   available,
		"version":             gorm.Expr("version + 1"),
		"last_calculated_at":  at,
		"last_transaction_id": nil,
	}
	if lastTransactionID != nil {
		updates["last_transaction_id"] = *lastTransactionID
	}
	res := r.db.WithContext(ctx).Model(&AccountBalance{}).Where("account_id = ?", accountID).Updates(updates)
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("balance %s: %w", accountID, domain.ErrNotFound)
	}
	return nil
}

func (r *ledgerRepository) AppendEntries(ctx context.Context, transactionID uuid.UUID, entries []ledger.Entry) error {
	if err := ledger.CheckBalanced(transactionID, entries); err != nil {
		return err
	}
	var existing int64
	if err := r.db.WithContext(ctx).Model(&LedgerEntry{}).
		Where("transaction_id = ?", transactionID).
		Count(&existing).Error; err != nil {
		return MapGormErrorToDomain(err)
	}
	if existing > 0 {
		return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrDuplicateTransaction)
	}

	rows := make([]LedgerEntry, 0, len(entries))
	for i := range entries {
		rows = append(rows, entryToModel(&entries[i]))
	}
	if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
		mapped := MapGormErrorToDomain(err)
		if errors.Is(mapped, domain.ErrAlreadyExists) {
			return fmt.Errorf("transaction %s: %w", transactionID, domain.ErrDuplicateTransaction)
		}
		return mapped
	}
	return nil
}

func (r *ledgerRepository) EntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error) {
	var rows []LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("entry_date, id").
		Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]ledger.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, entryFromModel(&rows[i]))
	}
	return out, nil
}

// ListEntries returns one keyset page ordered by (entry_date, id).
func (r *ledgerRepository) ListEntries(ctx context.Context, filter ledger.EntryFilter) (ledger.EntryPage, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	q := r.db.WithContext(ctx).Where("account_id = ?", filter.AccountID)
	if filter.After != nil {
		q = q.Where("(entry_date > ? OR (entry_date = ? AND id > ?))",
			filter.After.EntryDate, filter.After.EntryDate, filter.After.ID)
	}
	if filter.From != nil {
		q = q.Where("entry_date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("entry_date < ?", *filter.To)
	}

	var rows []LedgerEntry
	if err := q.Order("entry_date, id").Limit(limit + 1).Find(&rows).Error; err != nil {
		return ledger.EntryPage{}, MapGormErrorToDomain(err)
	}

	page := ledger.EntryPage{Entries: make([]ledger.Entry, 0, min(len(rows), limit))}
	for i := range rows {
		if i == limit {
			last := page.Entries[limit-1]
			page.NextCursor = ledger.Cursor{EntryDate: last.EntryDate, ID: last.ID}.Encode()
			break
		}
		page.Entries = append(page.Entries, entryFromModel(&rows[i]))
	}
	return page, nil
}

type entrySumRow struct {
	AccountID     uuid.UUID
	TransactionID uuid.UUID
	EntryType     string
	Amount        decimal.Decimal
}

// SumEntries streams the account's journal and sums it in fixed point.
func (r *ledgerRepository) SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, *uuid.UUID, error) {
	rows, err := r.db.WithContext(ctx).Model(&LedgerEntry{}).
		Select("account_id, transaction_id, entry_type, amount").
		Where("account_id = ?", accountID).
		Order("entry_date, id").
		Rows()
	if err != nil {
		return decimal.Zero, nil, MapGormErrorToDomain(err)
	}
	defer rows.Close() //nolint:errcheck

	sum := decimal.Zero
	var last *uuid.UUID
	for rows.Next() {
		var row entrySumRow
		if err := r.db.ScanRows(rows, &row); err != nil {
			return decimal.Zero, nil, MapGormErrorToDomain(err)
		}
		sum = sum.Add(ledger.SignedAmount(ledger.EntryType(row.EntryType), row.Amount))
		txID := row.TransactionID
		last = &txID
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, nil, MapGormErrorToDomain(err)
	}
	return sum, last, nil
}

// EntrySums streams the whole journal once and returns per-account signed sums.
func (r *ledgerRepository) EntrySums(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.WithContext(ctx).Model(&LedgerEntry{}).
		Select("account_id, transaction_id, entry_type, amount").
		Rows()
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	defer rows.Close() //nolint:errcheck

	sums := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var row entrySumRow
		if err := r.db.ScanRows(rows, &row); err != nil {
			return nil, MapGormErrorToDomain(err)
		}
		sums[row.AccountID] = sums[row.AccountID].Add(ledger.SignedAmount(ledger.EntryType(row.EntryType), row.Amount))
	}
	if err := rows.Err(); err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return sums, nil
}
