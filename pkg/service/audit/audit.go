// Package audit is the consistency auditor. It recomputes every account's
// balance from the journal, reports drift against the materialized balance
// and can rebuild the balances. The journal is never modified.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/ledger/pkg/domain/events"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/metrics"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Status is the overall health of the ledger.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusWarning  Status = "WARNING"
	StatusCritical Status = "CRITICAL"
)

// Mismatch is one account whose stored balance differs from its journal.
type Mismatch struct {
	AccountID  uuid.UUID       `json:"account_id"`
	Stored     decimal.Decimal `json:"stored"`
	Computed   decimal.Decimal `json:"computed"`
	Difference decimal.Decimal `json:"difference"`
}

// Report is the result of a consistency check. Mismatches is only filled
// for detailed checks.
type Report struct {
	Status             Status     `json:"status"`
	TotalAccounts      int        `json:"total_accounts"`
	ConsistentAccounts int        `json:"consistent_accounts"`
	MismatchCount      int        `json:"mismatch_count"`
	Mismatches         []Mismatch `json:"mismatches,omitempty"`
	CheckedAt          time.Time  `json:"checked_at"`
}

// RebuildReport summarizes a rebuild.
type RebuildReport struct {
	AccountsRefreshed int   `json:"accounts_refreshed"`
	DurationMs        int64 `json:"duration_ms"`
}

// Config sets the health thresholds.
type Config struct {
	// CriticalRatio is the mismatch share at or above which the ledger is CRITICAL.
	CriticalRatio float64
}

// Service implements Check and Rebuild.
type Service struct {
	uow     repository.UnitOfWork
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	checks  singleflight.Group
	now     func() time.Time
}

// New creates the auditor.
func New(uow repository.UnitOfWork, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Discard()
	}
	if cfg.CriticalRatio <= 0 {
		cfg.CriticalRatio = 0.05
	}
	return &Service{
		uow:     uow,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "audit"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Classify maps a mismatch count to a health status.
func (s *Service) Classify(mismatches, total int) Status {
	if mismatches == 0 {
		return StatusHealthy
	}
	if total > 0 && float64(mismatches)/float64(total) >= s.cfg.CriticalRatio {
		return StatusCritical
	}
	return StatusWarning
}

// Check compares every materialized balance with its journal sum. Concurrent
// callers share one scan, which outlives any single caller's cancellation.
// A single mismatch never stops the scan.
func (s *Service) Check(ctx context.Context, detailed bool) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shared := context.WithoutCancel(ctx)
	ch := s.checks.DoChan("check", func() (any, error) {
		return s.check(shared)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	full := res.Val.(*Report)
	report := *full
	if !detailed {
		report.Mismatches = nil
	} else {
		report.Mismatches = append([]Mismatch(nil), full.Mismatches...)
	}
	return &report, nil
}

func (s *Service) check(ctx context.Context) (*Report, error) {
	repo, err := s.uow.LedgerRepository()
	if err != nil {
		return nil, err
	}
	balances, err := repo.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	sums, err := repo.EntrySums(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum journal: %w", err)
	}

	report := &Report{TotalAccounts: len(balances), CheckedAt: s.now()}
	for _, b := range balances {
		if b.Available.Equal(sums[b.AccountID]) {
			report.ConsistentAccounts++
			continue
		}
		// The two reads above are not one snapshot, so a movement may have
		// committed between them. Confirm under the row lock.
		m, err := s.confirm(ctx, b.AccountID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			report.ConsistentAccounts++
			continue
		}
		report.Mismatches = append(report.Mismatches, *m)
		s.logger.Warn("balance mismatch",
			"account_id", m.AccountID,
			"stored", m.Stored.String(),
			"computed", m.Computed.String())
	}
	report.MismatchCount = len(report.Mismatches)
	report.Status = s.Classify(report.MismatchCount, report.TotalAccounts)
	s.metrics.ObserveAudit(string(report.Status), report.MismatchCount)
	s.logger.Info("consistency check finished",
		"status", report.Status,
		"total_accounts", report.TotalAccounts,
		"mismatches", report.MismatchCount)
	return report, nil
}

func (s *Service) confirm(ctx context.Context, accountID uuid.UUID) (*Mismatch, error) {
	var found *Mismatch
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.LedgerRepository()
		if err != nil {
			return err
		}
		locked, err := repo.LockBalances(ctx, []uuid.UUID{accountID})
		if err != nil {
			return err
		}
		sum, _, err := repo.SumEntries(ctx, accountID)
		if err != nil {
			return err
		}
		stored := locked[accountID].Available
		if !stored.Equal(sum) {
			found = &Mismatch{AccountID: accountID, Stored: stored, Computed: sum, Difference: stored.Sub(sum)}
		}
		return nil
	})
	return found, err
}

// Rebuild overwrites every balance with its journal sum. Each account is
// locked and rewritten in its own short transaction, so live traffic only
// waits for one account at a time. Failures on single accounts are collected
// and returned together after the pass.
func (s *Service) Rebuild(ctx context.Context) (*RebuildReport, error) {
	start := time.Now()
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	ids, err := accounts.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	report := &RebuildReport{}
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.rebuildOne(ctx, id); err != nil {
			s.logger.Error("balance rebuild failed", "account_id", id, "error", err)
			errs = append(errs, fmt.Errorf("account %s: %w", id, err))
			continue
		}
		report.AccountsRefreshed++
	}
	report.DurationMs = time.Since(start).Milliseconds()

	if err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		env, err := eventbus.NewEnvelope(events.BalancesRebuilt{
			AccountsRefreshed: report.AccountsRefreshed,
			DurationMs:        report.DurationMs,
			OccurredAt:        s.now(),
		}, uuid.Nil, s.now())
		if err != nil {
			return err
		}
		outbox, err := uow.OutboxRepository()
		if err != nil {
			return err
		}
		return outbox.Add(ctx, env)
	}); err != nil {
		errs = append(errs, fmt.Errorf("record rebuild event: %w", err))
	}

	s.logger.Info("balances rebuilt",
		"accounts_refreshed", report.AccountsRefreshed,
		"duration_ms", report.DurationMs,
		"failures", len(errs))
	return report, errors.Join(errs...)
}

func (s *Service) rebuildOne(ctx context.Context, accountID uuid.UUID) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.LedgerRepository()
		if err != nil {
			return err
		}
		locked, err := repo.LockBalances(ctx, []uuid.UUID{accountID})
		if err != nil {
			return err
		}
		sum, lastTx, err := repo.SumEntries(ctx, accountID)
		if err != nil {
			return err
		}
		if stored := locked[accountID].Available; !stored.Equal(sum) {
			s.logger.Warn("correcting balance",
				"account_id", accountID,
				"stored", stored.String(),
				"computed", sum.String())
		}
		return repo.OverwriteBalance(ctx, accountID, sum, lastTx, s.now())
	})
}
