package ledger

import (
	"time"

	ledgerdomain "github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/shopspring/decimal"
)

// DepositRequest credits account_id from the cash account.
type DepositRequest struct {
	AccountID   string          `json:"account_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

// WithdrawRequest debits account_id to the cash account.
type WithdrawRequest struct {
	AccountID   string          `json:"account_id" validate:"required,uuid"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

// TransferRequest moves money between two customer accounts.
type TransferRequest struct {
	FromAccountID string          `json:"from_account_id" validate:"required,uuid"`
	ToAccountID   string          `json:"to_account_id" validate:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description" validate:"max=500"`
}

// ReverseRequest carries the mandatory reason of a reversal.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// EntryDTO is the API representation of a journal entry.
type EntryDTO struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	EntryType     string          `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	EntryDate     time.Time       `json:"entry_date"`
}

// EntryPageDTO is one page of entries and the cursor of the next one.
type EntryPageDTO struct {
	Entries    []EntryDTO `json:"entries"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// BalanceDTO is the API representation of a materialized balance.
type BalanceDTO struct {
	AccountID         string          `json:"account_id"`
	AvailableBalance  decimal.Decimal `json:"available_balance"`
	LastTransactionID string          `json:"last_transaction_id,omitempty"`
	Version           int64           `json:"version"`
	LastCalculatedAt  time.Time       `json:"last_calculated_at"`
}

func toEntryPageDTO(p ledgerdomain.EntryPage) EntryPageDTO {
	out := EntryPageDTO{Entries: make([]EntryDTO, 0, len(p.Entries)), NextCursor: p.NextCursor}
	for _, e := range p.Entries {
		out.Entries = append(out.Entries, EntryDTO{
			ID:            e.ID.String(),
			TransactionID: e.TransactionID.String(),
			AccountID:     e.AccountID.String(),
			EntryType:     string(e.EntryType),
			Amount:        e.Amount,
			BalanceAfter:  e.BalanceAfter,
			EntryDate:     e.EntryDate,
		})
	}
	return out
}

func toBalanceDTO(b *ledgerdomain.Balance) BalanceDTO {
	out := BalanceDTO{
		AccountID:        b.AccountID.String(),
		AvailableBalance: b.Available,
		Version:          b.Version,
		LastCalculatedAt: b.LastCalculatedAt,
	}
	if b.LastTransactionID != nil {
		out.LastTransactionID = b.LastTransactionID.String()
	}
	return out
}
