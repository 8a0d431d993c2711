// Package ledger is the transaction engine: the only path through which money
// moves between accounts.
//
// Every movement follows the same protocol. The idempotency guard is
// consulted first; then, inside one unit of work, the affected balances are
// row-locked in ascending account order, preconditions are checked, the
// transaction header, its balanced entries, the new balances and an outbox
// event are written, and the idempotent response is stored. Business
// rejections (insufficient funds, inactive account) commit a FAILED
// transaction with no entries and are returned as a FAILED Result.
package ledger

import (
	"log/slog"
	"time"

	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/metrics"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
)

// Failure messages stored on FAILED transactions.
const (
	MsgInsufficientBalance = "Insufficient balance"
	MsgAccountNotActive    = "Account is not active"
)

// Config holds the engine's tunables.
type Config struct {
	// CashAccountID is the SYSTEM counterparty of deposits and withdrawals.
	CashAccountID uuid.UUID
	Currency      money.Code
	Retry         RetryConfig
}

// Service implements deposit, withdraw, transfer and reverse plus the
// journal queries.
type Service struct {
	uow     repository.UnitOfWork
	guard   *idempotency.Guard
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates the engine. guard may be nil, in which case idempotency keys
// are ignored.
func New(
	uow repository.UnitOfWork,
	guard *idempotency.Guard,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Discard()
	}
	if cfg.Currency == "" {
		cfg.Currency = money.DefaultCode
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Service{
		uow:     uow,
		guard:   guard,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "ledger"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}
