package events

import (
	"time"

	"github.com/google/uuid"
)

// BalancesRebuilt is emitted after a full balance rebuild.
type BalancesRebuilt struct {
	AccountsRefreshed int       `json:"accounts_refreshed"`
	DurationMs        int64     `json:"duration_ms"`
	OccurredAt        time.Time `json:"occurred_at"`
}

func (e BalancesRebuilt) Type() string { return EventTypeBalancesRebuilt.String() }

// ReconciliationClosed is emitted when an operator closes a reconciliation.
type ReconciliationClosed struct {
	ReconciliationID uuid.UUID `json:"reconciliation_id"`
	TotalItems       int       `json:"total_items"`
	MatchedItems     int       `json:"matched_items"`
	Discrepancy      string    `json:"discrepancy"`
	ClosedBy         string    `json:"closed_by"`
	Forced           bool      `json:"forced"`
	OccurredAt       time.Time `json:"occurred_at"`
}

func (e ReconciliationClosed) Type() string { return EventTypeReconciliationClosed.String() }
