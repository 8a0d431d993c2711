package ledger_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/amirasaad/ledger/infra/lock"
	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/domain"
	ledgerdomain "github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/service/ledger"
	"github.com/amirasaad/ledger/pkg/testutils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	uow *infrarepo.UoW
	svc *ledger.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutils.NewTestDB(t)
	testutils.SeedCashAccount(t, db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uow := infrarepo.NewUoW(db)
	guard := idempotency.New(uow, lock.NewMemoryLocker(), idempotency.DefaultConfig(), logger)
	svc := ledger.New(uow, guard, ledger.Config{CashAccountID: testutils.CashAccountID}, nil, logger)
	return &fixture{db: db, uow: uow, svc: svc}
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	b, err := f.svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return money.Format(b.Available)
}

func (f *fixture) entries(t *testing.T, id uuid.UUID) []ledgerdomain.Entry {
	t.Helper()
	var out []ledgerdomain.Entry
	it := f.svc.Entries(id, 2, "")
	for it.Next(context.Background()) {
		out = append(out, it.Entry())
	}
	require.NoError(t, it.Err())
	return out
}

func (f *fixture) deposit(t *testing.T, id uuid.UUID, amount string) *dto.Result {
	t.Helper()
	res, err := f.svc.Deposit(context.Background(), dto.DepositCommand{
		AccountID: id, Amount: money.MustParse(amount), Description: "seed", UserID: "tester",
	})
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, res.Status)
	return res
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)

	res := f.deposit(t, a.ID, "1000.00")
	assert.Equal(t, "1000.00", f.balance(t, a.ID))
	assert.Equal(t, "-1000.00", f.balance(t, testutils.CashAccountID))

	report, err := f.svc.VerifyDoubleEntry(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.EntryCount)
	assert.Equal(t, "1000.00", money.Format(report.TotalDebits))
	assert.Equal(t, "1000.00", money.Format(report.TotalCredits))

	entries := f.entries(t, a.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.EntryTypeCredit, entries[0].EntryType)
	assert.Equal(t, "1000.00", money.Format(entries[0].BalanceAfter))

	cash := f.entries(t, testutils.CashAccountID)
	require.Len(t, cash, 1)
	assert.Equal(t, ledgerdomain.EntryTypeDebit, cash[0].EntryType)

	outbox, err := f.uow.OutboxRepository()
	require.NoError(t, err)
	pending, err := outbox.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	a := testutils.SeedAccount(t, f.db)
	b := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "1000.00")

	res, err := f.svc.Transfer(context.Background(), dto.TransferCommand{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("250.00"), UserID: "tester",
	})
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, res.Status)

	assert.Equal(t, "750.00", f.balance(t, a.ID))
	assert.Equal(t, "250.00", f.balance(t, b.ID))

	aEntries := f.entries(t, a.ID)
	require.Len(t, aEntries, 2)
	assert.Equal(t, ledgerdomain.EntryTypeDebit, aEntries[1].EntryType)
	assert.Equal(t, res.TransactionID, aEntries[1].TransactionID)

	bEntries := f.entries(t, b.ID)
	require.Len(t, bEntries, 1)
	assert.Equal(t, ledgerdomain.EntryTypeCredit, bEntries[0].EntryType)
	assert.Equal(t, res.TransactionID, bEntries[0].TransactionID)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "100.00")

	res, err := f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("500.00")})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionStatusFailed, res.Status)
	assert.Equal(t, "Insufficient balance", res.Message)
	assert.True(t, res.Failed())

	assert.Equal(t, "100.00", f.balance(t, a.ID))
	assert.Len(t, f.entries(t, a.ID), 1)

	txRepo, err := f.uow.TransactionRepository()
	require.NoError(t, err)
	tx, err := txRepo.Get(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionStatusFailed, tx.Status)

	report, err := f.svc.VerifyDoubleEntry(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Zero(t, report.EntryCount)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	a := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "100.00")

	res, err := f.svc.Withdraw(context.Background(), dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("100.00")})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionStatusCompleted, res.Status)
	assert.Equal(t, "0.00", f.balance(t, a.ID))
	assert.Equal(t, "0.00", f.balance(t, testutils.CashAccountID))
}

func TestInactiveAccountFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	require.NoError(t, f.svc.SetBalanceLocked(ctx, a.ID, true))

	res, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("10.00")})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionStatusFailed, res.Status)
	assert.Equal(t, ledger.MsgAccountNotActive, res.Message)
	assert.Equal(t, "0.00", f.balance(t, a.ID))

	require.NoError(t, f.svc.SetBalanceLocked(ctx, a.ID, false))
	require.NoError(t, f.svc.SetStatus(ctx, a.ID, ledgerdomain.AccountStatusSuspended))
	res, err = f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("10.00")})
	require.NoError(t, err)
	assert.True(t, res.Failed())
}

func TestValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)

	tests := []struct {
		name string
		call func() error
	}{
		{"zero amount", func() error {
			_, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.Zero})
			return err
		}},
		{"negative amount", func() error {
			_, err := f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("-1")})
			return err
		}},
		{"sub-cent amount", func() error {
			_, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("1.001")})
			return err
		}},
		{"missing account id", func() error {
			_, err := f.svc.Deposit(ctx, dto.DepositCommand{Amount: money.MustParse("1")})
			return err
		}},
		{"self transfer", func() error {
			_, err := f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: a.ID, ToAccountID: a.ID, Amount: money.MustParse("1")})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), domain.ErrValidation)
		})
	}
	assert.Empty(t, f.entries(t, a.ID))
}

func TestSystemAccountsRejectedForCustomerOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	clearing := testutils.SeedAccount(t, f.db, func(acc *ledgerdomain.Account) {
		acc.Kind = ledgerdomain.AccountKindSystem
	})
	cash := testutils.CashAccountID
	amount := money.MustParse("1000000.00")

	tests := []struct {
		name string
		call func() (*dto.Result, error)
	}{
		{"transfer out of cash", func() (*dto.Result, error) {
			return f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: cash, ToAccountID: a.ID, Amount: amount})
		}},
		{"transfer into cash", func() (*dto.Result, error) {
			return f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: a.ID, ToAccountID: cash, Amount: amount})
		}},
		{"transfer out of system account", func() (*dto.Result, error) {
			return f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: clearing.ID, ToAccountID: a.ID, Amount: amount})
		}},
		{"transfer into system account", func() (*dto.Result, error) {
			return f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: a.ID, ToAccountID: clearing.ID, Amount: amount})
		}},
		{"deposit to cash", func() (*dto.Result, error) {
			return f.svc.Deposit(ctx, dto.DepositCommand{AccountID: cash, Amount: amount})
		}},
		{"withdraw from cash", func() (*dto.Result, error) {
			return f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: cash, Amount: amount})
		}},
		{"deposit to system account", func() (*dto.Result, error) {
			return f.svc.Deposit(ctx, dto.DepositCommand{AccountID: clearing.ID, Amount: amount})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Nil(t, res)
		})
	}
	assert.Equal(t, "0.00", f.balance(t, a.ID))
	assert.Equal(t, "0.00", f.balance(t, cash))
	assert.Empty(t, f.entries(t, cash))
}

func TestUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Deposit(context.Background(), dto.DepositCommand{AccountID: uuid.New(), Amount: money.MustParse("1")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	cmd := dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("75.00"), Description: "payroll", IdempotencyKey: "dep-1"}

	first, err := f.svc.Deposit(ctx, cmd)
	require.NoError(t, err)
	cmd.UserID = "someone-else"
	second, err := f.svc.Deposit(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "75.00", f.balance(t, a.ID))
	assert.Len(t, f.entries(t, a.ID), 1)
}

func TestIdempotentReplayOfFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	cmd := dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("5.00"), IdempotencyKey: "wd-1"}

	first, err := f.svc.Withdraw(ctx, cmd)
	require.NoError(t, err)
	require.True(t, first.Failed())

	f.deposit(t, a.ID, "10.00")
	second, err := f.svc.Withdraw(ctx, cmd)
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.True(t, second.Failed())
	assert.Equal(t, "10.00", f.balance(t, a.ID))
}

func TestIdempotencyKeyConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)

	_, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("10.00"), IdempotencyKey: "k"})
	require.NoError(t, err)

	_, err = f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("11.00"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("10.00"), IdempotencyKey: "k"})
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)

	assert.Len(t, f.entries(t, a.ID), 1)
	assert.Equal(t, "10.00", f.balance(t, a.ID))
}

func TestFailedOperationReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: missing, Amount: money.MustParse("1"), IdempotencyKey: "retry-me"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	a := testutils.SeedAccount(t, f.db, func(acc *ledgerdomain.Account) { acc.ID = missing })
	res, err := f.svc.Deposit(ctx, dto.DepositCommand{AccountID: a.ID, Amount: money.MustParse("1"), IdempotencyKey: "retry-me"})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.TransactionStatusCompleted, res.Status)
}

func TestReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	b := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "300.00")

	transfer, err := f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("100.00")})
	require.NoError(t, err)

	rev, err := f.svc.Reverse(ctx, dto.ReverseCommand{TransactionID: transfer.TransactionID, Reason: "sent in error", UserID: "ops"})
	require.NoError(t, err)
	require.Equal(t, ledgerdomain.TransactionStatusCompleted, rev.Status)
	assert.Equal(t, "300.00", f.balance(t, a.ID))
	assert.Equal(t, "0.00", f.balance(t, b.ID))

	report, err := f.svc.VerifyDoubleEntry(ctx, rev.TransactionID)
	require.NoError(t, err)
	assert.True(t, report.Valid)

	_, err = f.svc.Reverse(ctx, dto.ReverseCommand{TransactionID: transfer.TransactionID, Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)

	_, err = f.svc.Reverse(ctx, dto.ReverseCommand{TransactionID: rev.TransactionID, Reason: "undo undo"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReverseWouldOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	b := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "100.00")

	transfer, err := f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: a.ID, ToAccountID: b.ID, Amount: money.MustParse("100.00")})
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: b.ID, Amount: money.MustParse("60.00")})
	require.NoError(t, err)

	rev, err := f.svc.Reverse(ctx, dto.ReverseCommand{TransactionID: transfer.TransactionID, Reason: "chargeback"})
	require.NoError(t, err)
	assert.True(t, rev.Failed())
	assert.Equal(t, "40.00", f.balance(t, b.ID))

	txRepo, err := f.uow.TransactionRepository()
	require.NoError(t, err)
	orig, err := txRepo.Get(ctx, transfer.TransactionID)
	require.NoError(t, err)
	assert.Nil(t, orig.ReversedBy, "a failed reversal must not link the original")
}

func TestConcurrentZeroSumTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	b := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "100.00")
	f.deposit(t, b.ID, "100.00")

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: from, ToAccountID: to, Amount: money.MustParse("10.00")})
			if err == nil && res.Failed() {
				err = errors.New(res.Message)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, "100.00", f.balance(t, a.ID))
	assert.Equal(t, "100.00", f.balance(t, b.ID))
	// One deposit entry each plus one entry per transfer on each side.
	assert.Len(t, f.entries(t, a.ID), 1+n)
	assert.Len(t, f.entries(t, b.ID), 1+n)
}

func TestEntryIteratorResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	for i := 0; i < 5; i++ {
		f.deposit(t, a.ID, "1.00")
	}

	it := f.svc.Entries(a.ID, 2, "")
	var seen []uuid.UUID
	for len(seen) < 3 && it.Next(ctx) {
		seen = append(seen, it.Entry().ID)
	}
	require.Len(t, seen, 3)

	rest := f.svc.Entries(a.ID, 2, it.Cursor())
	for rest.Next(ctx) {
		seen = append(seen, rest.Entry().ID)
	}
	require.NoError(t, rest.Err())
	assert.Len(t, seen, 5)

	all := f.entries(t, a.ID)
	for i := range all {
		assert.Equal(t, all[i].ID, seen[i])
	}

	page, err := f.svc.GetLedgerEntries(ctx, dto.EntryQuery{AccountID: a.ID, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 5)
	assert.Empty(t, page.NextCursor)

	_, err = f.svc.GetLedgerEntries(ctx, dto.EntryQuery{AccountID: a.ID, Cursor: "not-a-cursor"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.GetLedgerEntries(ctx, dto.EntryQuery{AccountID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenAccount(t *testing.T) {
	f := newFixture(t)
	acc, err := f.svc.OpenAccount(context.Background(), "customer:42", "")
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.AccountKindCustomer, acc.Kind)
	assert.Equal(t, "0.00", f.balance(t, acc.ID))

	_, err = f.svc.OpenAccount(context.Background(), "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
