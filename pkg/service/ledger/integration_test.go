//go:build integration

package ledger_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/amirasaad/ledger/infra/lock"
	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/service/audit"
	"github.com/amirasaad/ledger/pkg/service/ledger"
	"github.com/amirasaad/ledger/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutils.NewPostgresDB(t)
	testutils.SeedCashAccount(t, db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uow := infrarepo.NewUoW(db)
	guard := idempotency.New(uow, lock.NewMemoryLocker(), idempotency.DefaultConfig(), logger)
	cfg := ledger.Config{CashAccountID: testutils.CashAccountID, Retry: ledger.DefaultRetryConfig()}
	cfg.Retry.MaxRetries = 10
	svc := ledger.New(uow, guard, cfg, nil, logger)
	return &fixture{db: db, uow: uow, svc: svc}
}

func TestPostgresConcurrentTransfers(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	b := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "500.00")
	f.deposit(t, b.ID, "500.00")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		from, to := a.ID, b.ID
		if i%2 == 1 {
			from, to = b.ID, a.ID
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Transfer(ctx, dto.TransferCommand{FromAccountID: from, ToAccountID: to, Amount: money.MustParse("7.25")})
			assert.NoError(t, err)
			if err == nil {
				assert.False(t, res.Failed(), res.Message)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, "500.00", f.balance(t, a.ID))
	assert.Equal(t, "500.00", f.balance(t, b.ID))
	assert.Len(t, f.entries(t, a.ID), 1+n)

	report, err := audit.New(f.uow, audit.Config{}, nil, slog.Default()).Check(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusHealthy, report.Status)
	assert.Zero(t, report.MismatchCount)
}

func TestPostgresConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	f := newPostgresFixture(t)
	ctx := context.Background()
	a := testutils.SeedAccount(t, f.db)
	f.deposit(t, a.ID, "100.00")

	const n = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Withdraw(ctx, dto.WithdrawCommand{AccountID: a.ID, Amount: money.MustParse("10.00")})
			if !assert.NoError(t, err) {
				return
			}
			if !res.Failed() {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, completed)
	assert.Equal(t, "0.00", f.balance(t, a.ID))
}
