package ledger

import (
	"context"

	"github.com/amirasaad/ledger/pkg/domain"
	ledgerdomain "github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/google/uuid"
)

// GetBalance returns the materialized balance of an account.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (*ledgerdomain.Balance, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	return repo.GetBalance(ctx, accountID)
}

// VerifyDoubleEntry reports whether a transaction's entries balance.
func (s *Service) VerifyDoubleEntry(ctx context.Context, transactionID uuid.UUID) (ledgerdomain.DoubleEntryReport, error) {
	txRepo, err := s.uow.TransactionRepository()
	if err != nil {
		return ledgerdomain.DoubleEntryReport{}, err
	}
	if _, err := txRepo.Get(ctx, transactionID); err != nil {
		return ledgerdomain.DoubleEntryReport{}, err
	}
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return ledgerdomain.DoubleEntryReport{}, err
	}
	entries, err := repo.EntriesByTransaction(ctx, transactionID)
	if err != nil {
		return ledgerdomain.DoubleEntryReport{}, err
	}
	report := ledgerdomain.VerifyDoubleEntry(transactionID, entries)
	if !report.Valid && report.EntryCount > 0 {
		s.logger.Error("unbalanced transaction found",
			"invariant_violation", true,
			"transaction_id", transactionID,
			"difference", report.Difference.String())
	}
	return report, nil
}

// GetLedgerEntries returns one page of an account's journal, oldest first.
func (s *Service) GetLedgerEntries(ctx context.Context, q dto.EntryQuery) (ledgerdomain.EntryPage, error) {
	if err := dto.Validate(q); err != nil {
		return ledgerdomain.EntryPage{}, err
	}
	after, err := ledgerdomain.DecodeCursor(q.Cursor)
	if err != nil {
		return ledgerdomain.EntryPage{}, err
	}
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return ledgerdomain.EntryPage{}, err
	}
	if _, err := accounts.Get(ctx, q.AccountID); err != nil {
		return ledgerdomain.EntryPage{}, err
	}
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return ledgerdomain.EntryPage{}, err
	}
	return repo.ListEntries(ctx, ledgerdomain.EntryFilter{AccountID: q.AccountID, Limit: q.Limit, After: after})
}

// Entries returns a lazy iterator over an account's journal starting after
// cursor. Pages of pageSize entries are fetched on demand.
func (s *Service) Entries(accountID uuid.UUID, pageSize int, cursor string) *EntryIterator {
	return &EntryIterator{
		svc:   s,
		query: dto.EntryQuery{AccountID: accountID, Limit: pageSize, Cursor: cursor},
	}
}

// EntryIterator walks an account's journal page by page. It is finite and
// can be resumed from any entry with a new iterator built from Cursor().
//
//	it := svc.Entries(accountID, 100, "")
//	for it.Next(ctx) {
//		e := it.Entry()
//	}
//	if err := it.Err(); err != nil { ... }
type EntryIterator struct {
	svc     *Service
	query   dto.EntryQuery
	page    []ledgerdomain.Entry
	pos     int
	current ledgerdomain.Entry
	fetched bool
	err     error
}

// Next advances to the next entry, fetching a page when needed.
func (it *EntryIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.page) {
		if it.fetched && it.query.Cursor == "" {
			return false
		}
		page, err := it.svc.GetLedgerEntries(ctx, it.query)
		if err != nil {
			it.err = err
			return false
		}
		it.fetched = true
		it.page, it.pos = page.Entries, 0
		it.query.Cursor = page.NextCursor
		if len(page.Entries) == 0 {
			return false
		}
	}
	it.current = it.page[it.pos]
	it.pos++
	return true
}

// Entry returns the entry Next moved to.
func (it *EntryIterator) Entry() ledgerdomain.Entry { return it.current }

// Cursor returns a cursor that resumes right after the current entry.
func (it *EntryIterator) Cursor() string {
	if it.current.ID == uuid.Nil {
		return ""
	}
	return ledgerdomain.Cursor{EntryDate: it.current.EntryDate, ID: it.current.ID}.Encode()
}

// Err returns the error that stopped the iteration, if any.
func (it *EntryIterator) Err() error { return it.err }

// OpenAccount creates an ACTIVE account with a zero balance. Account opening
// belongs to an outer workflow; this exists for seeding and operations.
func (s *Service) OpenAccount(ctx context.Context, ownerRef string, kind ledgerdomain.AccountKind) (*ledgerdomain.Account, error) {
	if ownerRef == "" {
		return nil, domain.NewValidationError("owner_ref", "is required")
	}
	if kind == "" {
		kind = ledgerdomain.AccountKindCustomer
	}
	if kind != ledgerdomain.AccountKindCustomer && kind != ledgerdomain.AccountKindSystem {
		return nil, domain.NewValidationError("kind", "must be CUSTOMER or SYSTEM")
	}
	acc := &ledgerdomain.Account{
		ID:       uuid.New(),
		OwnerRef: ownerRef,
		Kind:     kind,
		Status:   ledgerdomain.AccountStatusActive,
		Currency: s.cfg.Currency,
	}
	if kind == ledgerdomain.AccountKindSystem && s.cfg.CashAccountID != uuid.Nil {
		acc.ID = s.cfg.CashAccountID
	}
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, acc); err != nil {
		return nil, err
	}
	s.logger.Info("account opened", "account_id", acc.ID, "kind", acc.Kind)
	return acc, nil
}

// SetBalanceLocked freezes or unfreezes an account.
func (s *Service) SetBalanceLocked(ctx context.Context, accountID uuid.UUID, locked bool) error {
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return err
	}
	if err := repo.SetBalanceLocked(ctx, accountID, locked); err != nil {
		return err
	}
	s.logger.Info("account balance lock changed", "account_id", accountID, "locked", locked)
	return nil
}

// SetStatus changes an account's lifecycle status.
func (s *Service) SetStatus(ctx context.Context, accountID uuid.UUID, status ledgerdomain.AccountStatus) error {
	switch status {
	case ledgerdomain.AccountStatusActive, ledgerdomain.AccountStatusSuspended, ledgerdomain.AccountStatusClosed:
	default:
		return domain.NewValidationError("status", "must be ACTIVE, SUSPENDED or CLOSED")
	}
	repo, err := s.uow.AccountRepository()
	if err != nil {
		return err
	}
	return repo.SetStatus(ctx, accountID, status)
}
