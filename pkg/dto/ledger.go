// Package dto holds the commands accepted and the results returned by the
// ledger and reconciliation services.
package dto

import (
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositCommand credits a customer account from the cash account.
type DepositCommand struct {
	AccountID      uuid.UUID       `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"-"`
	Description    string          `json:"description" validate:"max=500"`
	UserID         string          `json:"user_id" validate:"max=255"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=255"`
}

// WithdrawCommand debits a customer account to the cash account.
type WithdrawCommand struct {
	AccountID      uuid.UUID       `json:"account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"-"`
	Description    string          `json:"description" validate:"max=500"`
	UserID         string          `json:"user_id" validate:"max=255"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=255"`
}

// TransferCommand moves money between two customer accounts.
type TransferCommand struct {
	FromAccountID  uuid.UUID       `json:"from_account_id" validate:"required"`
	ToAccountID    uuid.UUID       `json:"to_account_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount" validate:"-"`
	Description    string          `json:"description" validate:"max=500"`
	UserID         string          `json:"user_id" validate:"max=255"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=255"`
}

// ReverseCommand posts the mirror image of a completed transaction.
type ReverseCommand struct {
	TransactionID  uuid.UUID `json:"transaction_id" validate:"required"`
	Reason         string    `json:"reason" validate:"required,max=500"`
	UserID         string    `json:"user_id" validate:"max=255"`
	IdempotencyKey string    `json:"idempotency_key" validate:"max=255"`
}

// Result is the outcome of a money movement. Business failures are reported
// with Status FAILED and a human-readable Message, not as errors.
type Result struct {
	TransactionID uuid.UUID                `json:"transaction_id"`
	Status        ledger.TransactionStatus `json:"status"`
	Message       string                   `json:"message"`
}

// Failed reports whether the movement was rejected.
func (r *Result) Failed() bool {
	return r.Status == ledger.TransactionStatusFailed
}

// EntryQuery selects one page of an account's journal.
type EntryQuery struct {
	AccountID uuid.UUID `json:"account_id" validate:"required"`
	Limit     int       `json:"limit" validate:"gte=0,lte=500"`
	Cursor    string    `json:"cursor"`
}
