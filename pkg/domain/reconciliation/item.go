package reconciliation

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchStatus is the state of one statement line.
type MatchStatus string

const (
	MatchPending       MatchStatus = "PENDING"
	MatchAutoMatched   MatchStatus = "AUTO_MATCHED"
	MatchManualMatched MatchStatus = "MANUAL_MATCHED"
	MatchUnmatched     MatchStatus = "UNMATCHED"
	MatchDisputed      MatchStatus = "DISPUTED"
)

// Score is the per-factor breakdown of a candidate's match score.
type Score struct {
	Amount      float64 `json:"amount"`
	Date        float64 `json:"date"`
	Description float64 `json:"description"`
	Total       float64 `json:"total"`
}

// Item is one external statement line. Line orders items within their
// reconciliation and breaks scoring ties.
type Item struct {
	ID                     uuid.UUID
	ReconciliationID       uuid.UUID
	Line                   int
	TransactionDate        time.Time
	Description            string
	Amount                 decimal.Decimal
	Reference              string
	MatchStatus            MatchStatus
	MatchedTransactionID   *uuid.UUID
	SuggestedTransactionID *uuid.UUID
	MatchConfidence        *float64
	MatchScore             *Score
	MatchReason            string
	UpdatedBy              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsMatched reports whether the item is bound to a transaction.
func (i *Item) IsMatched() bool {
	return i.MatchStatus == MatchAutoMatched || i.MatchStatus == MatchManualMatched
}

// AutoMatch binds the item to transactionID with the computed score.
func (i *Item) AutoMatch(transactionID uuid.UUID, score Score, reason string, now time.Time) error {
	if i.MatchStatus != MatchPending {
		return fmt.Errorf("item %s is %s: %w", i.ID, i.MatchStatus, domain.ErrAlreadyMatched)
	}
	i.MatchStatus = MatchAutoMatched
	i.MatchedTransactionID = &transactionID
	i.SuggestedTransactionID = nil
	i.MatchConfidence = &score.Total
	i.MatchScore = &score
	i.MatchReason = reason
	i.UpdatedAt = now
	return nil
}

// Suggest records a below-threshold candidate. The item stays PENDING.
func (i *Item) Suggest(transactionID uuid.UUID, score Score, reason string, now time.Time) {
	i.SuggestedTransactionID = &transactionID
	i.MatchConfidence = &score.Total
	i.MatchScore = &score
	i.MatchReason = reason
	i.UpdatedAt = now
}

// MarkUnmatched records that no acceptable candidate was found.
func (i *Item) MarkUnmatched(reason string, now time.Time) {
	i.MatchStatus = MatchUnmatched
	i.MatchedTransactionID = nil
	i.SuggestedTransactionID = nil
	i.MatchConfidence = nil
	i.MatchScore = nil
	i.MatchReason = reason
	i.UpdatedAt = now
}

// ManualMatch binds the item to transactionID on an operator's behalf.
// Confirming an auto match promotes it to MANUAL_MATCHED; re-matching a
// manual match to the same transaction is a no-op.
func (i *Item) ManualMatch(transactionID uuid.UUID, actor string, now time.Time) error {
	if i.MatchedTransactionID != nil {
		sameTx := *i.MatchedTransactionID == transactionID
		if sameTx && i.MatchStatus == MatchManualMatched {
			return nil
		}
		if !sameTx || !i.IsMatched() {
			return fmt.Errorf("item %s is matched to %s: %w", i.ID, *i.MatchedTransactionID, domain.ErrAlreadyMatched)
		}
	}
	i.MatchStatus = MatchManualMatched
	i.MatchedTransactionID = &transactionID
	i.SuggestedTransactionID = nil
	i.MatchConfidence = nil
	i.MatchScore = nil
	i.MatchReason = "manual match by " + actor
	i.UpdatedBy = actor
	i.UpdatedAt = now
	return nil
}

// Unmatch reverts the item to PENDING. reason is mandatory.
func (i *Item) Unmatch(reason, actor string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return domain.NewValidationError("reason", "must not be empty")
	}
	i.MatchStatus = MatchPending
	i.MatchedTransactionID = nil
	i.SuggestedTransactionID = nil
	i.MatchConfidence = nil
	i.MatchScore = nil
	i.MatchReason = reason
	i.UpdatedBy = actor
	i.UpdatedAt = now
	return nil
}

// Dispute flags the item for investigation and releases any claim it holds.
func (i *Item) Dispute(reason, actor string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return domain.NewValidationError("reason", "must not be empty")
	}
	i.MatchStatus = MatchDisputed
	i.MatchedTransactionID = nil
	i.SuggestedTransactionID = nil
	i.MatchConfidence = nil
	i.MatchScore = nil
	i.MatchReason = reason
	i.UpdatedBy = actor
	i.UpdatedAt = now
	return nil
}
