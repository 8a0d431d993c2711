package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType is the side of a journal line.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// Entry is one append-only journal line. Amount is always positive.
type Entry struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	AccountID     uuid.UUID
	EntryType     EntryType
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	EntryDate     time.Time
}

// Signed returns the entry's effect on the account balance:
// credits increase it, debits decrease it.
func (e Entry) Signed() decimal.Decimal {
	return SignedAmount(e.EntryType, e.Amount)
}

// SignedAmount applies the balance sign convention to amount.
func SignedAmount(t EntryType, amount decimal.Decimal) decimal.Decimal {
	if t == EntryTypeDebit {
		return amount.Neg()
	}
	return amount
}

// Posting is an entry before it is bound to a balance snapshot.
type Posting struct {
	AccountID uuid.UUID
	EntryType EntryType
	Amount    decimal.Decimal
}

// Debit builds a debit posting.
func Debit(accountID uuid.UUID, amount decimal.Decimal) Posting {
	return Posting{AccountID: accountID, EntryType: EntryTypeDebit, Amount: amount}
}

// Credit builds a credit posting.
func Credit(accountID uuid.UUID, amount decimal.Decimal) Posting {
	return Posting{AccountID: accountID, EntryType: EntryTypeCredit, Amount: amount}
}

// AccountIDs returns the distinct accounts touched by entries in ascending order.
func AccountIDs(entries []Entry) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(entries))
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.AccountID]; ok {
			continue
		}
		seen[e.AccountID] = struct{}{}
		ids = append(ids, e.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// Totals returns debit and credit sums.
func Totals(entries []Entry) (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.EntryType {
		case EntryTypeDebit:
			debits = debits.Add(e.Amount)
		case EntryTypeCredit:
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

// CheckBalanced validates the entries of one transaction: non-empty, all bound
// to transactionID, positive amounts, known sides and Σdebit == Σcredit.
func CheckBalanced(transactionID uuid.UUID, entries []Entry) error {
	if len(entries) < 2 {
		return fmt.Errorf("transaction %s has %d entries: %w", transactionID, len(entries), domain.ErrImbalancedEntries)
	}
	for _, e := range entries {
		if e.TransactionID != transactionID {
			return fmt.Errorf("entry %s belongs to transaction %s, not %s: %w",
				e.ID, e.TransactionID, transactionID, domain.ErrImbalancedEntries)
		}
		if !e.Amount.IsPositive() {
			return fmt.Errorf("entry %s has non-positive amount %s: %w", e.ID, e.Amount, domain.ErrImbalancedEntries)
		}
		if e.EntryType != EntryTypeDebit && e.EntryType != EntryTypeCredit {
			return fmt.Errorf("entry %s has unknown type %q: %w", e.ID, e.EntryType, domain.ErrImbalancedEntries)
		}
	}
	debits, credits := Totals(entries)
	if !debits.Equal(credits) {
		return fmt.Errorf("debits %s != credits %s: %w", debits, credits, domain.ErrImbalancedEntries)
	}
	return nil
}

// DoubleEntryReport is the result of verifying a single transaction.
type DoubleEntryReport struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Valid         bool            `json:"valid"`
	EntryCount    int             `json:"entry_count"`
	TotalDebits   decimal.Decimal `json:"total_debits"`
	TotalCredits  decimal.Decimal `json:"total_credits"`
	Difference    decimal.Decimal `json:"difference"`
}

// VerifyDoubleEntry reports whether entries balance exactly.
func VerifyDoubleEntry(transactionID uuid.UUID, entries []Entry) DoubleEntryReport {
	debits, credits := Totals(entries)
	return DoubleEntryReport{
		TransactionID: transactionID,
		Valid:         len(entries) >= 2 && debits.Equal(credits),
		EntryCount:    len(entries),
		TotalDebits:   debits,
		TotalCredits:  credits,
		Difference:    debits.Sub(credits),
	}
}
