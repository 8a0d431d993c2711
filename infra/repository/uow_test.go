package repository

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })
	dialector := postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	})
	db, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)
	return db, mock
}

func TestUoW_DoAndGetRepository(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(txUow repository.UnitOfWork) error {
		repoAny, err := txUow.GetRepository(reflect.TypeOf((*repository.LedgerRepository)(nil)).Elem())
		require.NoError(err)
		_, ok := repoAny.(*ledgerRepository)
		assert.True(ok)

		repoAny, err = txUow.GetRepository(reflect.TypeOf((*repository.ReconciliationRepository)(nil)).Elem())
		require.NoError(err)
		_, ok = repoAny.(*reconciliationRepository)
		assert.True(ok)

		idem, err := txUow.IdempotencyRepository()
		require.NoError(err)
		assert.IsType(&idempotencyRepository{}, idem)
		return nil
	})
	assert.NoError(err)
	assert.NoError(mock.ExpectationsWereMet())
}

func TestUoW_TypeSafeMethods(t *testing.T) {
	require := require.New(t)
	assert := assert.New(t)
	db, _ := newMockDB(t)
	uow := NewUoW(db)

	ledgerRepo, err := uow.LedgerRepository()
	require.NoError(err)
	assert.NotNil(ledgerRepo)
	accountRepo, err := uow.AccountRepository()
	require.NoError(err)
	assert.NotNil(accountRepo)
	txRepo, err := uow.TransactionRepository()
	require.NoError(err)
	assert.NotNil(txRepo)
	outbox, err := uow.OutboxRepository()
	require.NoError(err)
	assert.NotNil(outbox)
}

func TestUoW_RollbackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(repository.UnitOfWork) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_LockTimeout(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db, WithLockTimeout(250*time.Millisecond))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '250ms'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, uow.Do(context.Background(), func(repository.UnitOfWork) error { return nil }))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_NestedDoJoinsOuterTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUoW(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(outer repository.UnitOfWork) error {
		return outer.Do(context.Background(), func(inner repository.UnitOfWork) error {
			assert.Same(t, outer, inner)
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUoW_UnsupportedRepository(t *testing.T) {
	db, _ := newMockDB(t)
	_, err := NewUoW(db).GetRepository(reflect.TypeOf(0))
	require.Error(t, err)
}
