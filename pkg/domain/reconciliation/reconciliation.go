// Package reconciliation models the matching of external statement lines
// against journal transactions.
package reconciliation

import (
	"fmt"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a reconciliation.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusMatched    Status = "MATCHED"
	StatusClosed     Status = "CLOSED"
	StatusFailed     Status = "FAILED"
)

// Reconciliation groups the items imported from one external statement.
type Reconciliation struct {
	ID             uuid.UUID
	Name           string
	Source         string
	Status         Status
	TotalItems     int
	MatchedItems   int
	UnmatchedItems int
	Discrepancy    decimal.Decimal
	CreatedBy      string
	ClosedBy       string
	ClosedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New returns an OPEN reconciliation with empty aggregates.
func New(name, source, createdBy string, now time.Time) (*Reconciliation, error) {
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be empty")
	}
	return &Reconciliation{
		ID:          uuid.New(),
		Name:        name,
		Source:      source,
		Status:      StatusOpen,
		Discrepancy: decimal.Zero,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// EnsureMutable fails once the reconciliation is CLOSED.
func (r *Reconciliation) EnsureMutable() error {
	if r.Status == StatusClosed {
		return fmt.Errorf("reconciliation %s: %w", r.ID, domain.ErrReconciliationClosed)
	}
	return nil
}

// Recompute refreshes the aggregates from items and moves the status between
// OPEN, IN_PROGRESS and MATCHED. CLOSED and FAILED are left untouched.
func (r *Reconciliation) Recompute(items []Item, now time.Time) {
	r.TotalItems = len(items)
	r.MatchedItems = 0
	r.Discrepancy = decimal.Zero
	decided := false
	for _, it := range items {
		if it.IsMatched() {
			r.MatchedItems++
		} else {
			r.Discrepancy = r.Discrepancy.Add(it.Amount.Abs())
		}
		if it.MatchStatus != MatchPending {
			decided = true
		}
	}
	r.UnmatchedItems = r.TotalItems - r.MatchedItems
	r.UpdatedAt = now

	if r.Status == StatusClosed || r.Status == StatusFailed {
		return
	}
	switch {
	case r.TotalItems > 0 && r.MatchedItems == r.TotalItems:
		r.Status = StatusMatched
	case decided:
		r.Status = StatusInProgress
	default:
		r.Status = StatusOpen
	}
}

// Close moves the reconciliation to CLOSED. Unless force is set it refuses
// while items are still PENDING.
func (r *Reconciliation) Close(items []Item, actor string, force bool, now time.Time) error {
	if err := r.EnsureMutable(); err != nil {
		return err
	}
	if r.Status == StatusFailed {
		return fmt.Errorf("reconciliation %s is %s: %w", r.ID, r.Status, domain.ErrValidation)
	}
	if !force {
		pending := 0
		for _, it := range items {
			if it.MatchStatus == MatchPending {
				pending++
			}
		}
		if pending > 0 {
			return fmt.Errorf("reconciliation %s has %d pending items: %w", r.ID, pending, domain.ErrOpenItemsRemain)
		}
	}
	r.Recompute(items, now)
	r.Status = StatusClosed
	r.ClosedBy = actor
	r.ClosedAt = &now
	return nil
}
