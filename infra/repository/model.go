package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Account represents an account record in the database.
type Account struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerRef      string    `gorm:"size:128;not null;index"`
	Kind          string    `gorm:"size:16;not null;default:CUSTOMER"`
	Status        string    `gorm:"size:16;not null;default:ACTIVE"`
	BalanceLocked bool      `gorm:"not null;default:false"`
	Currency      string    `gorm:"type:varchar(3);not null;default:'USD'"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Account) TableName() string { return "accounts" }

// AccountBalance is the materialized balance row, one per account.
type AccountBalance struct {
	AccountID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AvailableBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	LastTransactionID *uuid.UUID      `gorm:"type:uuid"`
	Version           int64           `gorm:"not null;default:0"`
	LastCalculatedAt  time.Time       `gorm:"not null"`
}

func (AccountBalance) TableName() string { return "account_balances" }

// Transaction represents a persisted transaction header.
type Transaction struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Type                 string          `gorm:"size:16;not null"`
	Amount               decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency             string          `gorm:"type:varchar(3);not null;default:'USD'"`
	Status               string          `gorm:"size:16;not null;index"`
	SourceAccountID      *uuid.UUID      `gorm:"type:uuid;index"`
	DestinationAccountID *uuid.UUID      `gorm:"type:uuid;index"`
	Description          string          `gorm:"size:500"`
	Message              string          `gorm:"size:500"`
	CreatedBy            string          `gorm:"size:128;not null"`
	IdempotencyKey       *string         `gorm:"size:255;index"`
	ReversalOf           *uuid.UUID      `gorm:"type:uuid;index"`
	ReversedBy           *uuid.UUID      `gorm:"type:uuid"`
	ProcessedAt          *time.Time      `gorm:"index"`
	CreatedAt            time.Time
}

func (Transaction) TableName() string { return "transactions" }

// LedgerEntry is one append-only journal line.
type LedgerEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_entries_account_date,priority:1"`
	EntryType     string          `gorm:"size:6;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	EntryDate     time.Time       `gorm:"not null;index:idx_ledger_entries_account_date,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// IdempotencyKey stores the outcome of a keyed request.
type IdempotencyKey struct {
	Key         string         `gorm:"column:idempotency_key;size:255;primaryKey"`
	Operation   string         `gorm:"size:32;not null"`
	RequestHash string         `gorm:"size:64;not null"`
	Status      string         `gorm:"size:16;not null"`
	Response    datatypes.JSON `gorm:"type:jsonb"`
	Generation  int            `gorm:"not null;default:0"`
	LockedUntil time.Time      `gorm:"not null"`
	ExpiresAt   time.Time      `gorm:"not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (IdempotencyKey) TableName() string { return "idempotency_keys" }

// OutboxEvent is an event waiting to be published.
type OutboxEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	EventType   string         `gorm:"size:64;not null"`
	AggregateID uuid.UUID      `gorm:"type:uuid;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb;not null"`
	OccurredAt  time.Time      `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"index"`
	PublishedAt *time.Time     `gorm:"index"`
	Attempts    int            `gorm:"not null;default:0"`
	LastError   string         `gorm:"size:1000"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// Reconciliation is the header of an imported statement.
type Reconciliation struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name           string          `gorm:"size:255;not null"`
	Source         string          `gorm:"size:255"`
	Status         string          `gorm:"size:16;not null"`
	TotalItems     int             `gorm:"not null;default:0"`
	MatchedItems   int             `gorm:"not null;default:0"`
	UnmatchedItems int             `gorm:"not null;default:0"`
	Discrepancy    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedBy      string          `gorm:"size:128"`
	ClosedBy       string          `gorm:"size:128"`
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Reconciliation) TableName() string { return "reconciliations" }

// ReconciliationItem is one imported statement line.
type ReconciliationItem struct {
	ID                     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ReconciliationID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Line                   int             `gorm:"not null"`
	TransactionDate        time.Time       `gorm:"not null"`
	Description            string          `gorm:"size:500"`
	Amount                 decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Reference              string          `gorm:"size:255"`
	MatchStatus            string          `gorm:"size:16;not null;index"`
	MatchedTransactionID   *uuid.UUID      `gorm:"type:uuid"`
	SuggestedTransactionID *uuid.UUID      `gorm:"type:uuid"`
	MatchConfidence        *float64        `gorm:"type:numeric(5,2)"`
	MatchDetails           datatypes.JSON  `gorm:"type:jsonb"`
	MatchReason            string          `gorm:"size:500"`
	UpdatedBy              string          `gorm:"size:128"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (ReconciliationItem) TableName() string { return "reconciliation_items" }

// ReconciliationClaim records which item holds a transaction. The primary
// key makes a double claim within one reconciliation impossible.
type ReconciliationClaim struct {
	ReconciliationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	TransactionID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ItemID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	CreatedAt        time.Time
}

func (ReconciliationClaim) TableName() string { return "reconciliation_claims" }

// Models lists every persisted model, in dependency order.
func Models() []any {
	return []any{
		&Account{},
		&AccountBalance{},
		&Transaction{},
		&LedgerEntry{},
		&IdempotencyKey{},
		&OutboxEvent{},
		&Reconciliation{},
		&ReconciliationItem{},
		&ReconciliationClaim{},
	}
}
