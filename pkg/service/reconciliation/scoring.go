package reconciliation

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
)

// Config holds the scoring weights and thresholds. The weights add up to
// the maximum score, 100 with the defaults.
type Config struct {
	AmountWeight        float64
	DateWeight          float64
	DatePenaltyPerDay   float64
	DateCutoffDays      int
	DescriptionWeight   float64
	AutoMatchThreshold  float64
	SuggestionThreshold float64
	// DateWindowDays bounds the candidate search around each item.
	DateWindowDays  int
	AmountTolerance decimal.Decimal
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		AmountWeight:        50,
		DateWeight:          30,
		DatePenaltyPerDay:   10,
		DateCutoffDays:      3,
		DescriptionWeight:   20,
		AutoMatchThreshold:  85,
		SuggestionThreshold: 60,
		DateWindowDays:      3,
		AmountTolerance:     decimal.RequireFromString("0.005"),
	}
}

// Score rates how well tx explains item.
func (c Config) Score(item *reconciliation.Item, tx *ledger.Transaction) reconciliation.Score {
	var s reconciliation.Score

	if effect, ok := StatementEffect(tx); ok && item.Amount.Sub(effect).Abs().LessThanOrEqual(c.AmountTolerance) {
		s.Amount = c.AmountWeight
	}

	if days := dayDiff(item.TransactionDate, candidateDate(tx)); days <= c.DateCutoffDays {
		s.Date = math.Max(0, c.DateWeight-c.DatePenaltyPerDay*float64(days))
	}

	best := similarity(item.Description, tx.Description)
	if item.Reference != "" {
		best = math.Max(best, similarity(item.Reference, tx.Reference()))
		best = math.Max(best, similarity(item.Reference, tx.Description))
	}
	best = math.Max(best, similarity(item.Description, tx.Reference()))
	s.Description = round2(best * c.DescriptionWeight)

	s.Total = round2(s.Amount + s.Date + s.Description)
	return s
}

// StatementEffect is the signed amount tx moves across the cash boundary, as
// a bank statement shows it: positive when money enters the ledger, negative
// when it leaves. Transfers between customer accounts never reach the
// statement and report false.
func StatementEffect(tx *ledger.Transaction) (decimal.Decimal, bool) {
	switch {
	case tx.DestinationAccountID != nil && tx.SourceAccountID == nil:
		return tx.Amount, true
	case tx.SourceAccountID != nil && tx.DestinationAccountID == nil:
		return tx.Amount.Neg(), true
	default:
		return decimal.Zero, false
	}
}

// Reason renders the contributing factors of a score.
func (c Config) Reason(s reconciliation.Score) string {
	return fmt.Sprintf("amount %.0f/%.0f, date %.0f/%.0f, description %.2f/%.0f, total %.2f",
		s.Amount, c.AmountWeight, s.Date, c.DateWeight, s.Description, c.DescriptionWeight, s.Total)
}

func candidateDate(tx *ledger.Transaction) time.Time {
	if tx.ProcessedAt != nil {
		return *tx.ProcessedAt
	}
	return tx.CreatedAt
}

// dayDiff counts calendar days between a and b in UTC.
func dayDiff(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	d := int(da.Sub(db).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// similarity is 1 - levenshtein/maxLen over case- and space-normalized text.
func similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	dist := fuzzy.LevenshteinDistance(a, b)
	return math.Max(0, 1-float64(dist)/float64(maxLen))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
