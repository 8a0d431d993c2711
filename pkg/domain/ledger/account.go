// Package ledger holds the double-entry domain model: accounts, their
// materialized balances, transactions and the append-only journal of entries.
package ledger

import (
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
	AccountStatusClosed    AccountStatus = "CLOSED"
)

// AccountKind separates customer accounts from the bank's own books.
type AccountKind string

const (
	// AccountKindCustomer accounts may never go below zero.
	AccountKindCustomer AccountKind = "CUSTOMER"
	// AccountKindSystem accounts (cash, clearing) are counterparties and may go negative.
	AccountKindSystem AccountKind = "SYSTEM"
)

// Account is the owner-facing container of money. Accounts are never deleted.
type Account struct {
	ID            uuid.UUID
	OwnerRef      string
	Kind          AccountKind
	Status        AccountStatus
	BalanceLocked bool
	Currency      money.Code
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanTransact returns ErrAccountNotActive unless the account is ACTIVE and not balance-locked.
func (a *Account) CanTransact() error {
	if a.Status != AccountStatusActive {
		return fmt.Errorf("account %s is %s: %w", a.ID, a.Status, domain.ErrAccountNotActive)
	}
	if a.BalanceLocked {
		return fmt.Errorf("account %s balance is locked: %w", a.ID, domain.ErrAccountNotActive)
	}
	return nil
}

// IsSystem reports whether overdraft rules are waived for this account.
func (a *Account) IsSystem() bool {
	return a.Kind == AccountKindSystem
}

// Balance is the materialized, version-stamped current balance of one account.
type Balance struct {
	AccountID         uuid.UUID
	Available         decimal.Decimal
	LastTransactionID *uuid.UUID
	Version           int64
	LastCalculatedAt  time.Time
}

// NewBalance returns the zero balance for a freshly opened account.
func NewBalance(accountID uuid.UUID, now time.Time) *Balance {
	return &Balance{
		AccountID:        accountID,
		Available:        decimal.Zero,
		Version:          0,
		LastCalculatedAt: now,
	}
}
