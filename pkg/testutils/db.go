// Package testutils provides databases, fixtures and HTTP helpers for tests.
package testutils

import (
	"context"
	"fmt"
	"testing"
	"time"

	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// CashAccountID is the system counterparty seeded by SeedCashAccount.
var CashAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// NewTestDB opens an isolated in-memory sqlite database with every model
// migrated. It uses a single connection, so concurrent writers serialize.
func NewTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=1", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(tb, err)

	sqlDB, err := db.DB()
	require.NoError(tb, err)
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(tb, db.AutoMigrate(infrarepo.Models()...))
	return db
}

// SeedCashAccount opens the SYSTEM cash account used as the counterparty of
// deposits and withdrawals.
func SeedCashAccount(tb testing.TB, db *gorm.DB) *ledger.Account {
	tb.Helper()
	return SeedAccount(tb, db, func(a *ledger.Account) {
		a.ID = CashAccountID
		a.OwnerRef = "bank:cash"
		a.Kind = ledger.AccountKindSystem
	})
}

// SeedAccount opens an ACTIVE customer account with a zero balance.
func SeedAccount(tb testing.TB, db *gorm.DB, opts ...func(*ledger.Account)) *ledger.Account {
	tb.Helper()
	acc := &ledger.Account{
		ID:       uuid.New(),
		OwnerRef: "customer:" + uuid.NewString()[:8],
		Kind:     ledger.AccountKindCustomer,
		Status:   ledger.AccountStatusActive,
		Currency: money.USD,
	}
	for _, opt := range opts {
		opt(acc)
	}
	repo := infrarepo.NewAccountRepository(db)
	require.NoError(tb, repo.Create(context.Background(), acc))
	return acc
}

// CorruptBalance overwrites a materialized balance without touching the journal.
func CorruptBalance(tb testing.TB, db *gorm.DB, accountID uuid.UUID, value string) {
	tb.Helper()
	require.NoError(tb, db.Model(&infrarepo.AccountBalance{}).
		Where("account_id = ?", accountID).
		Update("available_balance", money.MustParse(value)).Error)
}
