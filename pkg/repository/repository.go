package repository

import (
	"context"
	"time"

	"github.com/amirasaad/ledger/pkg/domain/idempotency"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerRepository is the journal plus the materialized balance cache.
type LedgerRepository interface {
	// LockBalances row-locks the balances of ids in ascending id order and
	// returns them keyed by account id. Missing rows yield ErrNotFound.
	LockBalances(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ledger.Balance, error)
	GetBalance(ctx context.Context, accountID uuid.UUID) (*ledger.Balance, error)
	ListBalances(ctx context.Context) ([]ledger.Balance, error)

	// UpdateBalance adds delta to the balance if its version still equals
	// expectedVersion, otherwise it fails with ErrStaleVersion.
	UpdateBalance(ctx context.Context, accountID uuid.UUID, delta decimal.Decimal, expectedVersion int64, lastTransactionID uuid.UUID) (*ledger.Balance, error)
	// OverwriteBalance sets the balance to available and bumps its version.
	OverwriteBalance(ctx context.Context, accountID uuid.UUID, available decimal.Decimal, lastTransactionID *uuid.UUID, at time.Time) error

	// AppendEntries writes every entry of a transaction. It fails with
	// ErrImbalancedEntries or ErrDuplicateTransaction.
	AppendEntries(ctx context.Context, transactionID uuid.UUID, entries []ledger.Entry) error
	EntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]ledger.Entry, error)
	ListEntries(ctx context.Context, filter ledger.EntryFilter) (ledger.EntryPage, error)

	// SumEntries returns the signed journal sum of one account and the
	// transaction of its latest entry.
	SumEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, *uuid.UUID, error)
	// EntrySums returns the signed journal sum of every account that has entries.
	EntrySums(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
}

// AccountRepository reads and administers accounts.
type AccountRepository interface {
	// Create inserts the account together with its zero balance row.
	Create(ctx context.Context, account *ledger.Account) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.Account, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*ledger.Account, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	SetStatus(ctx context.Context, id uuid.UUID, status ledger.AccountStatus) error
	SetBalanceLocked(ctx context.Context, id uuid.UUID, locked bool) error
}

// TransactionRepository stores transaction headers.
type TransactionRepository interface {
	Create(ctx context.Context, tx *ledger.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error)
	// MarkReversed links reversalID to id. It fails with ErrAlreadyReversed
	// when id already has a reversal.
	MarkReversed(ctx context.Context, id, reversalID uuid.UUID) error
	// ListCompletedBetween returns COMPLETED transactions with processed time in [from, to].
	ListCompletedBetween(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error)
}

// IdempotencyRepository stores idempotency records.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	// Insert fails with ErrAlreadyExists when the key is taken.
	Insert(ctx context.Context, record *idempotency.Record) error
	// Replace overwrites an expired or abandoned record. It reports false if
	// the stored generation no longer equals prev.Generation.
	Replace(ctx context.Context, prev, next *idempotency.Record) (bool, error)
	Complete(ctx context.Context, key string, response []byte, expiresAt, now time.Time) error
	// DeletePending removes the record only while it is still PENDING.
	DeletePending(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}

// OutboxMessage is an unpublished outbox row.
type OutboxMessage struct {
	Envelope eventbus.Envelope
	Attempts int
}

// OutboxRepository stores events written in the same unit of work as the ledger.
type OutboxRepository interface {
	Add(ctx context.Context, env eventbus.Envelope) error
	// ClaimBatch returns up to limit unpublished rows with fewer than
	// maxAttempts failures, oldest first, skipping rows locked by other
	// dispatchers where the database supports it.
	ClaimBatch(ctx context.Context, limit, maxAttempts int) ([]OutboxMessage, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	CountPending(ctx context.Context) (int64, error)
}

// ItemFilter selects reconciliation items.
type ItemFilter struct {
	Status *reconciliation.MatchStatus
	Limit  int
	Offset int
}

// ReconciliationRepository stores reconciliations, their items and the
// per-reconciliation transaction claims.
type ReconciliationRepository interface {
	Create(ctx context.Context, r *reconciliation.Reconciliation) error
	Get(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error)
	// GetForUpdate row-locks the reconciliation header.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error)
	Update(ctx context.Context, r *reconciliation.Reconciliation) error

	AddItems(ctx context.Context, items []reconciliation.Item) error
	Items(ctx context.Context, reconciliationID uuid.UUID, filter ItemFilter) ([]reconciliation.Item, error)
	GetItem(ctx context.Context, reconciliationID, itemID uuid.UUID) (*reconciliation.Item, error)
	// UpdateItem saves item only if its stored status is still expect,
	// otherwise it fails with ErrAlreadyMatched.
	UpdateItem(ctx context.Context, item *reconciliation.Item, expect reconciliation.MatchStatus) error

	// Claim binds transactionID to itemID. It fails with ErrAlreadyClaimed
	// when another item of the reconciliation holds the transaction.
	Claim(ctx context.Context, reconciliationID, transactionID, itemID uuid.UUID) error
	ReleaseClaim(ctx context.Context, reconciliationID, itemID uuid.UUID) error
	ClaimedTransactions(ctx context.Context, reconciliationID uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}
