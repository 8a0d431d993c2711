package domain

import (
	"errors"
	"fmt"
)

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is returned when a user is not authorized to perform an action
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInternal is the opaque error surfaced for infrastructure failures
	ErrInternal = errors.New("internal error")
)

// Ledger errors
var (
	// ErrInsufficientFunds is returned when a debit would overdraw a customer account
	ErrInsufficientFunds = errors.New("insufficient balance")
	// ErrAccountNotActive is returned when an account is suspended, closed or balance-locked
	ErrAccountNotActive = errors.New("account is not active")
	// ErrConcurrencyConflict is returned when a row lock could not be acquired in time
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrStaleVersion is returned when an optimistic balance update lost the race
	ErrStaleVersion = errors.New("stale balance version")
	// ErrImbalancedEntries is returned when debits and credits of a transaction differ
	ErrImbalancedEntries = errors.New("ledger entries are not balanced")
	// ErrDuplicateTransaction is returned when entries already exist for a transaction
	ErrDuplicateTransaction = errors.New("ledger entries already exist for transaction")
	// ErrAlreadyReversed is returned when reversing a transaction twice
	ErrAlreadyReversed = errors.New("transaction already reversed")
)

// Idempotency errors
var (
	// ErrIdempotencyKeyConflict is returned when a key is reused for a different request
	ErrIdempotencyKeyConflict = errors.New("idempotency key reused with a different request")
	// ErrIdempotencyInProgress is returned while another request holds the key
	ErrIdempotencyInProgress = errors.New("a request with this idempotency key is in progress")
)

// Reconciliation errors
var (
	// ErrReconciliationClosed is returned when mutating a closed reconciliation
	ErrReconciliationClosed = errors.New("reconciliation is closed")
	// ErrOpenItemsRemain is returned when closing with pending items
	ErrOpenItemsRemain = errors.New("reconciliation has unresolved items")
	// ErrAlreadyClaimed is returned when a transaction is already matched to another item
	ErrAlreadyClaimed = errors.New("transaction already matched to another item")
	// ErrAlreadyMatched is returned when an item is matched to a different transaction
	ErrAlreadyMatched = errors.New("item already matched to a different transaction")
)

// Kind classifies an error for propagation and retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindBusiness
	KindTransient
	KindConflict
	KindInvariant
	KindState
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusiness:
		return "business"
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindInvariant:
		return "invariant"
	case KindState:
		return "state"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// KindOf returns the classification of err by walking its chain.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrAccountNotActive),
		errors.Is(err, ErrAlreadyReversed):
		return KindBusiness
	case errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrStaleVersion),
		errors.Is(err, ErrIdempotencyInProgress):
		return KindTransient
	case errors.Is(err, ErrIdempotencyKeyConflict),
		errors.Is(err, ErrAlreadyClaimed),
		errors.Is(err, ErrAlreadyMatched),
		errors.Is(err, ErrAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrImbalancedEntries),
		errors.Is(err, ErrDuplicateTransaction):
		return KindInvariant
	case errors.Is(err, ErrReconciliationClosed),
		errors.Is(err, ErrOpenItemsRemain):
		return KindState
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the operation may be retried with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// ValidationError describes bad caller input. It unwraps to ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
