package reconciliation

import (
	"time"

	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/shopspring/decimal"
)

// CreateRequest opens a reconciliation.
type CreateRequest struct {
	Name   string `json:"name" validate:"required,max=255"`
	Source string `json:"source" validate:"max=255"`
}

// MatchRequest pairs an item with a journal transaction.
type MatchRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,uuid"`
}

// ReasonRequest carries the mandatory reason of an unmatch or dispute.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// CloseRequest closes a reconciliation. Force closes it with items still pending.
type CloseRequest struct {
	Force bool `json:"force"`
}

// ReconciliationDTO is the API representation of a reconciliation.
type ReconciliationDTO struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Source         string          `json:"source,omitempty"`
	Status         string          `json:"status"`
	TotalItems     int             `json:"total_items"`
	MatchedItems   int             `json:"matched_items"`
	UnmatchedItems int             `json:"unmatched_items"`
	Discrepancy    decimal.Decimal `json:"discrepancy"`
	CreatedBy      string          `json:"created_by,omitempty"`
	ClosedBy       string          `json:"closed_by,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ItemDTO is the API representation of a statement line and its match.
type ItemDTO struct {
	ID                     string                `json:"id"`
	Line                   int                   `json:"line"`
	TransactionDate        string                `json:"transaction_date"`
	Description            string                `json:"description"`
	Amount                 decimal.Decimal       `json:"amount"`
	Reference              string                `json:"reference,omitempty"`
	MatchStatus            string                `json:"match_status"`
	MatchedTransactionID   string                `json:"matched_transaction_id,omitempty"`
	SuggestedTransactionID string                `json:"suggested_transaction_id,omitempty"`
	MatchConfidence        *float64              `json:"match_confidence"`
	MatchScore             *reconciliation.Score `json:"match_score,omitempty"`
	MatchReason            string                `json:"match_reason,omitempty"`
	UpdatedBy              string                `json:"updated_by,omitempty"`
}

func toReconciliationDTO(r *reconciliation.Reconciliation) ReconciliationDTO {
	return ReconciliationDTO{
		ID:             r.ID.String(),
		Name:           r.Name,
		Source:         r.Source,
		Status:         string(r.Status),
		TotalItems:     r.TotalItems,
		MatchedItems:   r.MatchedItems,
		UnmatchedItems: r.UnmatchedItems,
		Discrepancy:    r.Discrepancy,
		CreatedBy:      r.CreatedBy,
		ClosedBy:       r.ClosedBy,
		ClosedAt:       r.ClosedAt,
		CreatedAt:      r.CreatedAt,
	}
}

func toItemDTO(i *reconciliation.Item) ItemDTO {
	out := ItemDTO{
		ID:              i.ID.String(),
		Line:            i.Line,
		TransactionDate: i.TransactionDate.Format(time.DateOnly),
		Description:     i.Description,
		Amount:          i.Amount,
		Reference:       i.Reference,
		MatchStatus:     string(i.MatchStatus),
		MatchConfidence: i.MatchConfidence,
		MatchScore:      i.MatchScore,
		MatchReason:     i.MatchReason,
		UpdatedBy:       i.UpdatedBy,
	}
	if i.MatchedTransactionID != nil {
		out.MatchedTransactionID = i.MatchedTransactionID.String()
	}
	if i.SuggestedTransactionID != nil {
		out.SuggestedTransactionID = i.SuggestedTransactionID.String()
	}
	return out
}

func toItemDTOs(items []reconciliation.Item) []ItemDTO {
	out := make([]ItemDTO, 0, len(items))
	for i := range items {
		out = append(out, toItemDTO(&items[i]))
	}
	return out
}
