package repository

import (
	"encoding/json"

	"github.com/amirasaad/ledger/pkg/domain/idempotency"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/money"
	"gorm.io/datatypes"
)

func accountToModel(a *ledger.Account) Account {
	return Account{
		ID:            a.ID,
		OwnerRef:      a.OwnerRef,
		Kind:          string(a.Kind),
		Status:        string(a.Status),
		BalanceLocked: a.BalanceLocked,
		Currency:      a.Currency.String(),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func accountFromModel(m *Account) *ledger.Account {
	return &ledger.Account{
		ID:            m.ID,
		OwnerRef:      m.OwnerRef,
		Kind:          ledger.AccountKind(m.Kind),
		Status:        ledger.AccountStatus(m.Status),
		BalanceLocked: m.BalanceLocked,
		Currency:      money.Code(m.Currency),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func balanceFromModel(m *AccountBalance) *ledger.Balance {
	return &ledger.Balance{
		AccountID:         m.AccountID,
		Available:         m.AvailableBalance,
		LastTransactionID: m.LastTransactionID,
		Version:           m.Version,
		LastCalculatedAt:  m.LastCalculatedAt,
	}
}

func transactionToModel(t *ledger.Transaction) Transaction {
	return Transaction{
		ID:                   t.ID,
		Type:                 string(t.Type),
		Amount:               t.Amount,
		Currency:             t.Currency.String(),
		Status:               string(t.Status),
		SourceAccountID:      t.SourceAccountID,
		DestinationAccountID: t.DestinationAccountID,
		Description:          t.Description,
		Message:              t.Message,
		CreatedBy:            t.CreatedBy,
		IdempotencyKey:       t.IdempotencyKey,
		ReversalOf:           t.ReversalOf,
		ReversedBy:           t.ReversedBy,
		ProcessedAt:          t.ProcessedAt,
		CreatedAt:            t.CreatedAt,
	}
}

func transactionFromModel(m *Transaction) *ledger.Transaction {
	return &ledger.Transaction{
		ID:                   m.ID,
		Type:                 ledger.TransactionType(m.Type),
		Amount:               m.Amount,
		Currency:             money.Code(m.Currency),
		Status:               ledger.TransactionStatus(m.Status),
		SourceAccountID:      m.SourceAccountID,
		DestinationAccountID: m.DestinationAccountID,
		Description:          m.Description,
		Message:              m.Message,
		CreatedBy:            m.CreatedBy,
		IdempotencyKey:       m.IdempotencyKey,
		ReversalOf:           m.ReversalOf,
		ReversedBy:           m.ReversedBy,
		ProcessedAt:          m.ProcessedAt,
		CreatedAt:            m.CreatedAt,
	}
}

func entryToModel(e *ledger.Entry) LedgerEntry {
	return LedgerEntry{
		ID:            e.ID,
		TransactionID: e.TransactionID,
		AccountID:     e.AccountID,
		EntryType:     string(e.EntryType),
		Amount:        e.Amount,
		BalanceAfter:  e.BalanceAfter,
		EntryDate:     e.EntryDate,
	}
}

func entryFromModel(m *LedgerEntry) ledger.Entry {
	return ledger.Entry{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		AccountID:     m.AccountID,
		EntryType:     ledger.EntryType(m.EntryType),
		Amount:        m.Amount,
		BalanceAfter:  m.BalanceAfter,
		EntryDate:     m.EntryDate,
	}
}

func recordToModel(r *idempotency.Record) IdempotencyKey {
	return IdempotencyKey{
		Key:         r.Key,
		Operation:   r.Operation,
		RequestHash: r.RequestHash,
		Status:      string(r.Status),
		Response:    datatypes.JSON(r.Response),
		Generation:  r.Generation,
		LockedUntil: r.LockedUntil,
		ExpiresAt:   r.ExpiresAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func recordFromModel(m *IdempotencyKey) *idempotency.Record {
	return &idempotency.Record{
		Key:         m.Key,
		Operation:   m.Operation,
		RequestHash: m.RequestHash,
		Status:      idempotency.Status(m.Status),
		Response:    []byte(m.Response),
		Generation:  m.Generation,
		LockedUntil: m.LockedUntil,
		ExpiresAt:   m.ExpiresAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func reconciliationToModel(r *reconciliation.Reconciliation) Reconciliation {
	return Reconciliation{
		ID:             r.ID,
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
		UpdatedAt:      r.UpdatedAt,
	}
}

func reconciliationFromModel(m *Reconciliation) *reconciliation.Reconciliation {
	return &reconciliation.Reconciliation{
		ID:             m.ID,
		Name:           m.Name,
		Source:         m.Source,
		Status:         reconciliation.Status(m.Status),
		TotalItems:     m.TotalItems,
		MatchedItems:   m.MatchedItems,
		UnmatchedItems: m.UnmatchedItems,
		Discrepancy:    m.Discrepancy,
		CreatedBy:      m.CreatedBy,
		ClosedBy:       m.ClosedBy,
		ClosedAt:       m.ClosedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func itemToModel(i *reconciliation.Item) ReconciliationItem {
	var details datatypes.JSON
	if i.MatchScore != nil {
		raw, _ := json.Marshal(i.MatchScore) //nolint:errchkjson
		details = raw
	}
	return ReconciliationItem{
		ID:                     i.ID,
		ReconciliationID:       i.ReconciliationID,
		Line:                   i.Line,
		TransactionDate:        i.TransactionDate,
		Description:            i.Description,
		Amount:                 i.Amount,
		Reference:              i.Reference,
		MatchStatus:            string(i.MatchStatus),
		MatchedTransactionID:   i.MatchedTransactionID,
		SuggestedTransactionID: i.SuggestedTransactionID,
		MatchConfidence:        i.MatchConfidence,
		MatchDetails:           details,
		MatchReason:            i.MatchReason,
		UpdatedBy:              i.UpdatedBy,
		CreatedAt:              i.CreatedAt,
		UpdatedAt:              i.UpdatedAt,
	}
}

func itemFromModel(m *ReconciliationItem) reconciliation.Item {
	item := reconciliation.Item{
		ID:                     m.ID,
		ReconciliationID:       m.ReconciliationID,
		Line:                   m.Line,
		TransactionDate:        m.TransactionDate,
		Description:            m.Description,
		Amount:                 m.Amount,
		Reference:              m.Reference,
		MatchStatus:            reconciliation.MatchStatus(m.MatchStatus),
		MatchedTransactionID:   m.MatchedTransactionID,
		SuggestedTransactionID: m.SuggestedTransactionID,
		MatchConfidence:        m.MatchConfidence,
		MatchReason:            m.MatchReason,
		UpdatedBy:              m.UpdatedBy,
		CreatedAt:              m.CreatedAt,
		UpdatedAt:              m.UpdatedAt,
	}
	if len(m.MatchDetails) > 0 {
		var s reconciliation.Score
		if err := json.Unmarshal(m.MatchDetails, &s); err == nil {
			item.MatchScore = &s
		}
	}
	return item
}
