package events

import (
	"time"

	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/google/uuid"
)

// EntryLine is the journal line carried in a completion event.
type EntryLine struct {
	AccountID    uuid.UUID `json:"account_id"`
	EntryType    string    `json:"entry_type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
}

// TransactionCompleted is emitted once per committed money movement.
type TransactionCompleted struct {
	EventType            EventType   `json:"event_type"`
	TransactionID        uuid.UUID   `json:"transaction_id"`
	TransactionType      string      `json:"transaction_type"`
	Amount               string      `json:"amount"`
	Currency             string      `json:"currency"`
	SourceAccountID      *uuid.UUID  `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID  `json:"destination_account_id,omitempty"`
	ReversalOf           *uuid.UUID  `json:"reversal_of,omitempty"`
	CreatedBy            string      `json:"created_by"`
	Entries              []EntryLine `json:"entries"`
	OccurredAt           time.Time   `json:"occurred_at"`
}

func (e TransactionCompleted) Type() string { return e.EventType.String() }

// TransactionFailed is emitted when a movement is rejected for a business reason.
type TransactionFailed struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	TransactionType string    `json:"transaction_type"`
	Amount          string    `json:"amount"`
	Reason          string    `json:"reason"`
	CreatedBy       string    `json:"created_by"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (e TransactionFailed) Type() string { return EventTypeTransactionFailed.String() }

// CompletedTypeFor maps a transaction type to its completion event.
func CompletedTypeFor(t ledger.TransactionType) EventType {
	switch t {
	case ledger.TransactionTypeDeposit:
		return EventTypeDepositCompleted
	case ledger.TransactionTypeWithdrawal:
		return EventTypeWithdrawalCompleted
	case ledger.TransactionTypeReversal:
		return EventTypeReversalCompleted
	default:
		return EventTypeTransferCompleted
	}
}

// NewTransactionCompleted builds the completion event from a committed transaction.
func NewTransactionCompleted(tx *ledger.Transaction, entries []ledger.Entry) TransactionCompleted {
	lines := make([]EntryLine, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, EntryLine{
			AccountID:    e.AccountID,
			EntryType:    string(e.EntryType),
			Amount:       e.Amount.StringFixed(2),
			BalanceAfter: e.BalanceAfter.StringFixed(2),
		})
	}
	occurred := tx.CreatedAt
	if tx.ProcessedAt != nil {
		occurred = *tx.ProcessedAt
	}
	return TransactionCompleted{
		EventType:            CompletedTypeFor(tx.Type),
		TransactionID:        tx.ID,
		TransactionType:      string(tx.Type),
		Amount:               tx.Amount.StringFixed(2),
		Currency:             tx.Currency.String(),
		SourceAccountID:      tx.SourceAccountID,
		DestinationAccountID: tx.DestinationAccountID,
		ReversalOf:           tx.ReversalOf,
		CreatedBy:            tx.CreatedBy,
		Entries:              lines,
		OccurredAt:           occurred,
	}
}
