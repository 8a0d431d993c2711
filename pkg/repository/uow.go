package repository

import (
	"context"
	"reflect"
)

// UnitOfWork defines the contract for transactional work and type-safe repository access.
//
// Do runs the given function in a transaction boundary; every repository
// obtained from the UnitOfWork passed to fn shares that transaction.
// Outside Do, repositories run on the plain connection.
//
//	repoAny, err := uow.GetRepository(reflect.TypeOf((*LedgerRepository)(nil)).Elem())
//	repo := repoAny.(LedgerRepository)
type UnitOfWork interface {
	// Do executes fn within a transaction boundary. If fn returns an error
	// the transaction is rolled back.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested type bound to the current session.
	GetRepository(repoType reflect.Type) (any, error)

	LedgerRepository() (LedgerRepository, error)
	AccountRepository() (AccountRepository, error)
	TransactionRepository() (TransactionRepository, error)
	IdempotencyRepository() (IdempotencyRepository, error)
	OutboxRepository() (OutboxRepository, error)
	ReconciliationRepository() (ReconciliationRepository, error)
}
