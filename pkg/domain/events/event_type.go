// Package events defines the domain events the ledger writes to its outbox.
package events

// EventType represents the type of an event in the system.
type EventType string

// Event type constants
const (
	// Ledger events
	EventTypeDepositCompleted    EventType = "DEPOSIT_COMPLETED"
	EventTypeWithdrawalCompleted EventType = "WITHDRAWAL_COMPLETED"
	EventTypeTransferCompleted   EventType = "TRANSFER_COMPLETED"
	EventTypeReversalCompleted   EventType = "REVERSAL_COMPLETED"
	EventTypeTransactionFailed   EventType = "TRANSACTION_FAILED"

	// Audit events
	EventTypeBalancesRebuilt EventType = "BALANCES_REBUILT"

	// Reconciliation events
	EventTypeReconciliationClosed EventType = "RECONCILIATION_CLOSED"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

// Event is anything that can be published on the bus.
type Event interface {
	Type() string
}
