package repository

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/amirasaad/ledger/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides transaction boundary and repository access in one abstraction.
// Every repository handed out inside Do shares the same gorm transaction.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	lockTimeout  time.Duration
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// Option configures a UoW.
type Option func(*UoW)

// WithLockTimeout bounds how long a statement waits on a row lock. It is
// applied with SET LOCAL on postgres; other dialects ignore it.
func WithLockTimeout(d time.Duration) Option {
	return func(u *UoW) { u.lockTimeout = d }
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB, opts ...Option) *UoW {
	u := &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			reflect.TypeOf((*repository.LedgerRepository)(nil)).Elem():         func(db *gorm.DB) any { return NewLedgerRepository(db) },
			reflect.TypeOf((*repository.AccountRepository)(nil)).Elem():        func(db *gorm.DB) any { return NewAccountRepository(db) },
			reflect.TypeOf((*repository.TransactionRepository)(nil)).Elem():    func(db *gorm.DB) any { return NewTransactionRepository(db) },
			reflect.TypeOf((*repository.IdempotencyRepository)(nil)).Elem():    func(db *gorm.DB) any { return NewIdempotencyRepository(db) },
			reflect.TypeOf((*repository.OutboxRepository)(nil)).Elem():         func(db *gorm.DB) any { return NewOutboxRepository(db) },
			reflect.TypeOf((*repository.ReconciliationRepository)(nil)).Elem(): func(db *gorm.DB) any { return NewReconciliationRepository(db) },
		},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs fn in a transaction boundary. A Do nested inside another Do joins
// the outer transaction.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if u.lockTimeout > 0 && tx.Dialector.Name() == "postgres" {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		txnUow := &UoW{db: u.db, tx: tx, lockTimeout: u.lockTimeout, repoRegistry: u.repoRegistry}
		return fn(txnUow)
	})
	return MapGormErrorToDomain(err)
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// GetRepository provides type-safe access to repositories bound to the current session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u.session()), nil
}

func getRepo[T any](u *UoW) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("repository %T does not implement %v", repoAny, reflect.TypeOf((*T)(nil)).Elem())
	}
	return repo, nil
}

func (u *UoW) LedgerRepository() (repository.LedgerRepository, error) {
	return getRepo[repository.LedgerRepository](u)
}

func (u *UoW) AccountRepository() (repository.AccountRepository, error) {
	return getRepo[repository.AccountRepository](u)
}

func (u *UoW) TransactionRepository() (repository.TransactionRepository, error) {
	return getRepo[repository.TransactionRepository](u)
}

func (u *UoW) IdempotencyRepository() (repository.IdempotencyRepository, error) {
	return getRepo[repository.IdempotencyRepository](u)
}

func (u *UoW) OutboxRepository() (repository.OutboxRepository, error) {
	return getRepo[repository.OutboxRepository](u)
}

func (u *UoW) ReconciliationRepository() (repository.ReconciliationRepository, error) {
	return getRepo[repository.ReconciliationRepository](u)
}

var _ repository.UnitOfWork = (*UoW)(nil)
