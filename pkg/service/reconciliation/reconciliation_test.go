package reconciliation_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/ledger/infra/lock"
	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/events"
	recdomain "github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/amirasaad/ledger/pkg/service/ledger"
	"github.com/amirasaad/ledger/pkg/service/reconciliation"
	"github.com/amirasaad/ledger/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	uow     *infrarepo.UoW
	ledger  *ledger.Service
	matcher *reconciliation.Service
	account uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutils.NewTestDB(t)
	testutils.SeedCashAccount(t, db)
	acc := testutils.SeedAccount(t, db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uow := infrarepo.NewUoW(db)
	guard := idempotency.New(uow, lock.NewMemoryLocker(), idempotency.DefaultConfig(), logger)
	return &fixture{
		db:      db,
		uow:     uow,
		ledger:  ledger.New(uow, guard, ledger.Config{CashAccountID: testutils.CashAccountID}, nil, logger),
		matcher: reconciliation.New(uow, reconciliation.DefaultConfig(), nil, logger),
		account: acc.ID,
	}
}

func (f *fixture) deposit(t *testing.T, amount, description string) uuid.UUID {
	t.Helper()
	res, err := f.ledger.Deposit(context.Background(), dto.DepositCommand{
		AccountID: f.account, Amount: money.MustParse(amount), Description: description, UserID: "tester",
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	return res.TransactionID
}

func (f *fixture) create(t *testing.T) *recdomain.Reconciliation {
	t.Helper()
	rec, err := f.matcher.Create(context.Background(), dto.CreateReconciliation{
		Name: "October statement", Source: "bank-csv", UserID: "ops",
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) items(t *testing.T, id uuid.UUID) []recdomain.Item {
	t.Helper()
	items, err := f.matcher.Items(context.Background(), id, repository.ItemFilter{})
	require.NoError(t, err)
	return items
}

func today(offsetDays int) string {
	return time.Now().UTC().AddDate(0, 0, offsetDays).Format(reconciliation.DateLayout)
}

func TestAutoMatchExactTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txID := f.deposit(t, "150.00", "Invoice 42 payment")
	rec := f.create(t)

	report, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "INVOICE 42  payment", Amount: "150.00"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, report.Errors)

	matched, err := f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, matched.Matched)
	assert.Zero(t, matched.Unmatched)

	items := f.items(t, rec.ID)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, recdomain.MatchAutoMatched, item.MatchStatus)
	require.NotNil(t, item.MatchedTransactionID)
	assert.Equal(t, txID, *item.MatchedTransactionID)
	require.NotNil(t, item.MatchConfidence)
	assert.GreaterOrEqual(t, *item.MatchConfidence, reconciliation.DefaultConfig().AutoMatchThreshold)

	got, err := f.matcher.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusMatched, got.Status)
	assert.Equal(t, 1, got.MatchedItems)
	assert.True(t, got.Discrepancy.IsZero())
}

func TestAutoMatchRespectsSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, "150.00", "Invoice 42 payment")
	rec := f.create(t)

	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "Invoice 42 payment", Amount: "-150.00"},
	})
	require.NoError(t, err)

	report, err := f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Zero(t, report.Matched)
	assert.Equal(t, 1, report.Unmatched)

	items := f.items(t, rec.ID)
	require.Len(t, items, 1)
	assert.Equal(t, recdomain.MatchUnmatched, items[0].MatchStatus)
	assert.Nil(t, items[0].MatchedTransactionID)
}

func TestAutoMatchWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, "100.00", "Salary")
	res, err := f.ledger.Withdraw(ctx, dto.WithdrawCommand{
		AccountID: f.account, Amount: money.MustParse("40.00"), Description: "ATM withdrawal", UserID: "tester",
	})
	require.NoError(t, err)
	rec := f.create(t)

	_, err = f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "ATM withdrawal", Amount: "-40.00"},
	})
	require.NoError(t, err)

	report, err := f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)

	items := f.items(t, rec.ID)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].MatchedTransactionID)
	assert.Equal(t, res.TransactionID, *items[0].MatchedTransactionID)
}

func TestAutoMatchSuggestsAndLeavesUnmatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txID := f.deposit(t, "200.00", "Payroll")
	rec := f.create(t)

	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(2), Description: "qqq", Amount: "200.00"},
		{Date: today(0), Description: "Coffee", Amount: "3.50"},
	})
	require.NoError(t, err)

	report, err := f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Considered)
	assert.Zero(t, report.Matched)
	assert.Equal(t, 1, report.Suggested)
	assert.Equal(t, 1, report.Unmatched)

	items := f.items(t, rec.ID)
	require.Len(t, items, 2)
	assert.Equal(t, recdomain.MatchPending, items[0].MatchStatus)
	require.NotNil(t, items[0].SuggestedTransactionID)
	assert.Equal(t, txID, *items[0].SuggestedTransactionID)
	assert.Nil(t, items[0].MatchedTransactionID)
	assert.Equal(t, recdomain.MatchUnmatched, items[1].MatchStatus)

	got, err := f.matcher.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusInProgress, got.Status)
	assert.Equal(t, "203.50", money.Format(got.Discrepancy))
}

func TestTransactionClaimedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txID := f.deposit(t, "150.00", "Invoice 42")
	rec := f.create(t)

	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "Invoice 42", Amount: "150.00"},
		{Date: today(0), Description: "Invoice 42", Amount: "150.00"},
	})
	require.NoError(t, err)

	report, err := f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Unmatched)

	items := f.items(t, rec.ID)
	require.Len(t, items, 2)
	assert.Equal(t, recdomain.MatchAutoMatched, items[0].MatchStatus, "lower line wins the tie")

	_, err = f.matcher.ManualMatch(ctx, rec.ID, items[1].ID, txID, "ops")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Releasing the first item frees the transaction for the second.
	_, err = f.matcher.Unmatch(ctx, rec.ID, items[0].ID, "wrong line", "ops")
	require.NoError(t, err)
	item, err := f.matcher.ManualMatch(ctx, rec.ID, items[1].ID, txID, "ops")
	require.NoError(t, err)
	assert.Equal(t, recdomain.MatchManualMatched, item.MatchStatus)

	// Matching again to the same transaction is a no-op.
	_, err = f.matcher.ManualMatch(ctx, rec.ID, items[1].ID, txID, "ops")
	require.NoError(t, err)
}

func TestManualMatchConfirmsAutoMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	txID := f.deposit(t, "150.00", "Invoice 42")
	rec := f.create(t)

	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "Invoice 42", Amount: "150.00"},
	})
	require.NoError(t, err)
	_, err = f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)
	items := f.items(t, rec.ID)
	require.Len(t, items, 1)
	require.Equal(t, recdomain.MatchAutoMatched, items[0].MatchStatus)

	item, err := f.matcher.ManualMatch(ctx, rec.ID, items[0].ID, txID, "ops")
	require.NoError(t, err)
	assert.Equal(t, recdomain.MatchManualMatched, item.MatchStatus)
	assert.Nil(t, item.MatchConfidence)

	stored := f.items(t, rec.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, recdomain.MatchManualMatched, stored[0].MatchStatus)
	assert.Nil(t, stored[0].MatchConfidence)
	require.NotNil(t, stored[0].MatchedTransactionID)
	assert.Equal(t, txID, *stored[0].MatchedTransactionID)

	got, err := f.matcher.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MatchedItems)
}

func TestManualMatchUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t)
	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "x", Amount: "1.00"},
	})
	require.NoError(t, err)
	items := f.items(t, rec.ID)

	_, err = f.matcher.ManualMatch(ctx, rec.ID, items[0].ID, uuid.New(), "ops")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDisputeRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t)
	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "x", Amount: "1.00"},
	})
	require.NoError(t, err)
	items := f.items(t, rec.ID)

	_, err = f.matcher.Dispute(ctx, rec.ID, items[0].ID, " ", "ops")
	require.ErrorIs(t, err, domain.ErrValidation)

	item, err := f.matcher.Dispute(ctx, rec.ID, items[0].ID, "customer says unknown", "ops")
	require.NoError(t, err)
	assert.Equal(t, recdomain.MatchDisputed, item.MatchStatus)
	assert.Equal(t, "ops", item.UpdatedBy)
}

func TestImportItemsReportsArrayPosition(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t)

	report, err := f.matcher.ImportItems(context.Background(), rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "Rent", Amount: "-1200.00"},
		{Date: today(0), Description: "Zero", Amount: "0"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)
}

func TestReadCSVRecordsFileLines(t *testing.T) {
	csv := "date,description,amount\n" +
		today(0) + ",\"two\nlines\",1.00\n" +
		today(0) + ",Coffee,3.50\n"
	rows, err := reconciliation.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, 4, rows[1].Line)
}

func TestImportReportsRowErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t)

	csv := "Date,Description,Amount,Reference\n" +
		today(0) + ",Rent,-1200.00,R-1\n" +
		"19/10/2026,Bad date,10.00,\n" +
		today(0) + ",Bad amount,ten,\n" +
		today(0) + ",Too precise,1.005,\n" +
		today(0) + ",Zero,0,\n" +
		today(0) + ",Groceries,45.10\n"

	report, err := f.matcher.ImportCSV(ctx, rec.ID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	require.Len(t, report.Errors, 4)
	// Rows are reported by file line; the header is line 1.
	assert.Equal(t, []int{3, 4, 5, 6}, []int{
		report.Errors[0].Row, report.Errors[1].Row, report.Errors[2].Row, report.Errors[3].Row,
	})

	items := f.items(t, rec.ID)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Line)
	assert.Equal(t, "R-1", items[0].Reference)
	assert.Equal(t, 2, items[1].Line)

	// A second import continues the line numbering.
	_, err = f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{{Date: today(0), Description: "Late", Amount: "5.00"}})
	require.NoError(t, err)
	items = f.items(t, rec.ID)
	require.Len(t, items, 3)
	assert.Equal(t, 3, items[2].Line)

	got, err := f.matcher.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalItems)
	assert.Equal(t, "1250.10", money.Format(got.Discrepancy))
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := reconciliation.ReadCSV(strings.NewReader("date,amount\n2026-10-19,1.00\n"))
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = reconciliation.ReadCSV(strings.NewReader(""))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, "150.00", "Invoice 42")
	rec := f.create(t)
	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{
		{Date: today(0), Description: "Invoice 42", Amount: "150.00"},
		{Date: today(0), Description: "Unknown", Amount: "9.99"},
	})
	require.NoError(t, err)

	_, err = f.matcher.Close(ctx, rec.ID, "ops", false)
	require.ErrorIs(t, err, domain.ErrOpenItemsRemain)

	_, err = f.matcher.AutoMatch(ctx, rec.ID)
	require.NoError(t, err)

	closed, err := f.matcher.Close(ctx, rec.ID, "ops", false)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusClosed, closed.Status)
	assert.Equal(t, "ops", closed.ClosedBy)
	assert.Equal(t, "9.99", money.Format(closed.Discrepancy))

	_, err = f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{{Date: today(0), Description: "x", Amount: "1.00"}})
	require.ErrorIs(t, err, domain.ErrReconciliationClosed)
	_, err = f.matcher.AutoMatch(ctx, rec.ID)
	require.ErrorIs(t, err, domain.ErrReconciliationClosed)
	_, err = f.matcher.Close(ctx, rec.ID, "ops", true)
	require.ErrorIs(t, err, domain.ErrReconciliationClosed)

	var count int64
	require.NoError(t, f.db.Model(&infrarepo.OutboxEvent{}).
		Where("event_type = ?", events.EventTypeReconciliationClosed.String()).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestForceClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := f.create(t)
	_, err := f.matcher.ImportItems(ctx, rec.ID, []dto.StatementRow{{Date: today(0), Description: "x", Amount: "1.00"}})
	require.NoError(t, err)

	closed, err := f.matcher.Close(ctx, rec.ID, "ops", true)
	require.NoError(t, err)
	assert.Equal(t, recdomain.StatusClosed, closed.Status)
	assert.Equal(t, 1, closed.UnmatchedItems)
}

func TestCreateValidates(t *testing.T) {
	f := newFixture(t)
	_, err := f.matcher.Create(context.Background(), dto.CreateReconciliation{})
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.matcher.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
