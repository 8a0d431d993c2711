package ledger

import (
	"time"

	"github.com/amirasaad/ledger/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType names the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeReversal   TransactionType = "REVERSAL"
)

// TransactionStatus moves PENDING -> COMPLETED | FAILED and never back.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction is the header of one money movement; its entries live in the journal.
// A COMPLETED transaction is immutable except for ReversedBy.
type Transaction struct {
	ID                   uuid.UUID
	Type                 TransactionType
	Amount               decimal.Decimal
	Currency             money.Code
	Status               TransactionStatus
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	Description          string
	Message              string
	CreatedBy            string
	IdempotencyKey       *string
	ReversalOf           *uuid.UUID
	ReversedBy           *uuid.UUID
	ProcessedAt          *time.Time
	CreatedAt            time.Time
}

// IsCompleted reports whether the transaction has posted entries.
func (t *Transaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// Reference returns the public reference of the transaction.
func (t *Transaction) Reference() string {
	return t.ID.String()
}
