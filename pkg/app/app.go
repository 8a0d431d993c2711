// Package app wires the ledger services from their dependencies and
// configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/amirasaad/ledger/pkg/config"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/metrics"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/outbox"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/amirasaad/ledger/pkg/service/audit"
	"github.com/amirasaad/ledger/pkg/service/ledger"
	"github.com/amirasaad/ledger/pkg/service/reconciliation"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Deps contains the infrastructure the services are built on.
type Deps struct {
	Uow      repository.UnitOfWork
	Locker   idempotency.Locker
	EventBus eventbus.Bus
	Registry prometheus.Registerer
	Logger   *slog.Logger
}

type App struct {
	Deps                  *Deps
	Config                *config.App
	Metrics               *metrics.Metrics
	Guard                 *idempotency.Guard
	LedgerService         *ledger.Service
	AuditService          *audit.Service
	ReconciliationService *reconciliation.Service
	Dispatcher            *outbox.Dispatcher
}

func New(deps *Deps, cfg *config.App) (*App, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ledgerCfg, err := LedgerConfig(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	reconCfg, err := ReconciliationConfig(cfg.Recon)
	if err != nil {
		return nil, err
	}

	m := metrics.New(deps.Registry)
	app := &App{
		Deps:    deps,
		Config:  cfg,
		Metrics: m,
	}
	app.setupEventBus()

	app.Guard = idempotency.New(deps.Uow, deps.Locker, IdempotencyConfig(cfg.Idempotency), deps.Logger)
	app.LedgerService = ledger.New(deps.Uow, app.Guard, ledgerCfg, m, deps.Logger)
	app.AuditService = audit.New(deps.Uow, AuditConfig(cfg.Audit), m, deps.Logger)
	app.ReconciliationService = reconciliation.New(deps.Uow, reconCfg, m, deps.Logger)
	app.Dispatcher = outbox.NewDispatcher(deps.Uow, deps.EventBus, OutboxConfig(cfg.Outbox), m, deps.Logger)
	return app, nil
}

// LedgerConfig converts the LEDGER_* settings.
func LedgerConfig(c *config.Ledger) (ledger.Config, error) {
	out := ledger.Config{Retry: ledger.DefaultRetryConfig()}
	if c == nil {
		return out, nil
	}
	if c.CashAccountID != "" {
		id, err := uuid.Parse(c.CashAccountID)
		if err != nil {
			return out, fmt.Errorf("LEDGER_CASH_ACCOUNT_ID: %w", err)
		}
		out.CashAccountID = id
	}
	if c.Currency != "" {
		code := money.Code(c.Currency)
		if !code.IsValid() {
			return out, fmt.Errorf("LEDGER_CURRENCY %q is not a valid currency code", c.Currency)
		}
		out.Currency = code
	}
	if c.MaxRetries > 0 {
		out.Retry.MaxRetries = c.MaxRetries
	}
	if c.RetryInitial > 0 {
		out.Retry.Initial = c.RetryInitial
	}
	if c.RetryMax > 0 {
		out.Retry.Max = c.RetryMax
	}
	return out, nil
}

// IdempotencyConfig converts the IDEMPOTENCY_* settings.
func IdempotencyConfig(c *config.Idempotency) idempotency.Config {
	out := idempotency.DefaultConfig()
	if c == nil {
		return out
	}
	if c.TTL > 0 {
		out.TTL = c.TTL
	}
	if c.LockTTL > 0 {
		out.LockTTL = c.LockTTL
	}
	return out
}

// AuditConfig converts the AUDIT_* settings.
func AuditConfig(c *config.Audit) audit.Config {
	if c == nil {
		return audit.Config{}
	}
	return audit.Config{CriticalRatio: c.CriticalRatio}
}

// ReconciliationConfig converts the RECON_* settings.
func ReconciliationConfig(c *config.Recon) (reconciliation.Config, error) {
	out := reconciliation.DefaultConfig()
	if c == nil {
		return out, nil
	}
	out.AmountWeight = c.AmountWeight
	out.DateWeight = c.DateWeight
	out.DatePenaltyPerDay = c.DatePenaltyPerDay
	out.DateCutoffDays = c.DateCutoffDays
	out.DescriptionWeight = c.DescriptionWeight
	out.AutoMatchThreshold = c.AutoMatchThreshold
	out.SuggestionThreshold = c.SuggestionThreshold
	out.DateWindowDays = c.DateWindowDays
	if c.AmountTolerance != "" {
		tol, err := decimal.NewFromString(c.AmountTolerance)
		if err != nil {
			return out, fmt.Errorf("RECON_AMOUNT_TOLERANCE: %w", err)
		}
		out.AmountTolerance = tol
	}
	if out.SuggestionThreshold > out.AutoMatchThreshold {
		return out, fmt.Errorf("RECON_SUGGESTION_THRESHOLD %.0f exceeds RECON_AUTO_MATCH_THRESHOLD %.0f",
			out.SuggestionThreshold, out.AutoMatchThreshold)
	}
	return out, nil
}

// OutboxConfig converts the OUTBOX_* settings.
func OutboxConfig(c *config.Outbox) outbox.Config {
	out := outbox.DefaultConfig()
	if c == nil {
		return out
	}
	if c.BatchSize > 0 {
		out.BatchSize = c.BatchSize
	}
	out.MaxAttempts = c.MaxAttempts
	if c.BreakerFailures > 0 {
		out.BreakerFailures = c.BreakerFailures
	}
	if c.BreakerTimeout > 0 {
		out.BreakerTimeout = c.BreakerTimeout
	}
	return out
}
