// Package reconciliation pairs imported statement lines with journal
// transactions, automatically by score or manually by an operator.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/events"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/metrics"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
)

// Service implements the matcher operations.
type Service struct {
	uow     repository.UnitOfWork
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// New creates the matcher.
func New(uow repository.UnitOfWork, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Service{
		uow:     uow,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "reconciliation"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an empty reconciliation.
func (s *Service) Create(ctx context.Context, cmd dto.CreateReconciliation) (*reconciliation.Reconciliation, error) {
	if err := dto.Validate(cmd); err != nil {
		return nil, err
	}
	rec, err := reconciliation.New(cmd.Name, cmd.Source, cmd.UserID, s.now())
	if err != nil {
		return nil, err
	}
	repo, err := s.uow.ReconciliationRepository()
	if err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info("reconciliation created", "reconciliation_id", rec.ID, "name", rec.Name)
	return rec, nil
}

// Get returns a reconciliation header.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*reconciliation.Reconciliation, error) {
	repo, err := s.uow.ReconciliationRepository()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

// Items lists the items of a reconciliation ordered by line.
func (s *Service) Items(ctx context.Context, id uuid.UUID, filter repository.ItemFilter) ([]reconciliation.Item, error) {
	repo, err := s.uow.ReconciliationRepository()
	if err != nil {
		return nil, err
	}
	if _, err := repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return repo.Items(ctx, id, filter)
}

// mutate runs fn on a locked, mutable reconciliation and then refreshes its
// aggregates from the stored items.
func (s *Service) mutate(
	ctx context.Context,
	id uuid.UUID,
	fn func(uow repository.UnitOfWork, repo repository.ReconciliationRepository, rec *reconciliation.Reconciliation) error,
) (*reconciliation.Reconciliation, error) {
	var out *reconciliation.Reconciliation
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.ReconciliationRepository()
		if err != nil {
			return err
		}
		rec, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := rec.EnsureMutable(); err != nil {
			return err
		}
		if err := fn(uow, repo, rec); err != nil {
			return err
		}
		items, err := repo.Items(ctx, id, repository.ItemFilter{})
		if err != nil {
			return err
		}
		rec.Recompute(items, s.now())
		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// AutoMatch scores every PENDING item against the completed transactions in
// its date window and assigns them greedily, best score first. Pairs at or
// above the auto-match threshold are claimed and AUTO_MATCHED; pairs at or
// above the suggestion threshold are recorded on a PENDING item; items with
// no acceptable candidate become UNMATCHED.
func (s *Service) AutoMatch(ctx context.Context, id uuid.UUID) (*dto.AutoMatchReport, error) {
	report := &dto.AutoMatchReport{ReconciliationID: id}
	_, err := s.mutate(ctx, id, func(uow repository.UnitOfWork, repo repository.ReconciliationRepository, rec *reconciliation.Reconciliation) error {
		*report = dto.AutoMatchReport{ReconciliationID: id}
		pendingStatus := reconciliation.MatchPending
		items, err := repo.Items(ctx, id, repository.ItemFilter{Status: &pendingStatus})
		if err != nil {
			return err
		}
		report.Considered = len(items)
		if len(items) == 0 {
			return nil
		}

		candidates, err := s.candidates(ctx, uow, items)
		if err != nil {
			return err
		}
		claimed, err := repo.ClaimedTransactions(ctx, id)
		if err != nil {
			return err
		}

		pairs := s.rank(items, candidates, claimed)
		now := s.now()
		decided := make(map[int]bool, len(items))
		used := make(map[uuid.UUID]bool)
		for _, p := range pairs {
			item := &items[p.item]
			if decided[p.item] || used[p.tx.ID] {
				continue
			}
			reason := s.cfg.Reason(p.score)
			if p.score.Total < s.cfg.AutoMatchThreshold {
				item.Suggest(p.tx.ID, p.score, "suggested: "+reason, now)
				if err := repo.UpdateItem(ctx, item, reconciliation.MatchPending); err != nil {
					return err
				}
				decided[p.item] = true
				report.Suggested++
				continue
			}
			if err := repo.Claim(ctx, id, p.tx.ID, item.ID); err != nil {
				if domain.KindOf(err) == domain.KindConflict {
					used[p.tx.ID] = true
					continue
				}
				return err
			}
			if err := item.AutoMatch(p.tx.ID, p.score, reason, now); err != nil {
				return err
			}
			if err := repo.UpdateItem(ctx, item, reconciliation.MatchPending); err != nil {
				return err
			}
			decided[p.item] = true
			used[p.tx.ID] = true
			report.Matched++
		}

		for i := range items {
			if decided[i] {
				continue
			}
			items[i].MarkUnmatched(
				fmt.Sprintf("no candidate scored %.0f or more", s.cfg.SuggestionThreshold), now)
			if err := repo.UpdateItem(ctx, &items[i], reconciliation.MatchPending); err != nil {
				return err
			}
			report.Unmatched++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ItemsMatched("auto", report.Matched)
	s.logger.Info("auto-match finished",
		"reconciliation_id", id,
		"considered", report.Considered,
		"matched", report.Matched,
		"suggested", report.Suggested,
		"unmatched", report.Unmatched)
	return report, nil
}

// candidates loads the completed transactions that fall inside the date
// window of at least one item.
func (s *Service) candidates(ctx context.Context, uow repository.UnitOfWork, items []reconciliation.Item) ([]ledger.Transaction, error) {
	from, to := items[0].TransactionDate, items[0].TransactionDate
	for _, it := range items[1:] {
		if it.TransactionDate.Before(from) {
			from = it.TransactionDate
		}
		if it.TransactionDate.After(to) {
			to = it.TransactionDate
		}
	}
	window := time.Duration(s.cfg.DateWindowDays) * 24 * time.Hour
	from = startOfDay(from).Add(-window)
	to = startOfDay(to).Add(window + 24*time.Hour - time.Nanosecond)

	txRepo, err := uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	return txRepo.ListCompletedBetween(ctx, from, to)
}

type pair struct {
	item  int
	line  int
	tx    *ledger.Transaction
	score reconciliation.Score
}

// rank scores every (item, candidate) pair inside the window and orders
// them by score desc, then item line asc.
func (s *Service) rank(items []reconciliation.Item, candidates []ledger.Transaction, claimed map[uuid.UUID]uuid.UUID) []pair {
	var pairs []pair
	for i := range items {
		for j := range candidates {
			tx := &candidates[j]
			if _, taken := claimed[tx.ID]; taken {
				continue
			}
			if _, ok := StatementEffect(tx); !ok {
				continue
			}
			if dayDiff(items[i].TransactionDate, candidateDate(tx)) > s.cfg.DateWindowDays {
				continue
			}
			score := s.cfg.Score(&items[i], tx)
			if score.Total < s.cfg.SuggestionThreshold {
				continue
			}
			pairs = append(pairs, pair{item: i, line: items[i].Line, tx: tx, score: score})
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].score.Total != pairs[b].score.Total {
			return pairs[a].score.Total > pairs[b].score.Total
		}
		if pairs[a].line != pairs[b].line {
			return pairs[a].line < pairs[b].line
		}
		return pairs[a].tx.ID.String() < pairs[b].tx.ID.String()
	})
	return pairs
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ManualMatch binds an item to a transaction on an operator's behalf. It
// fails with ErrAlreadyMatched when the item holds a different transaction
// and with ErrAlreadyClaimed when another item holds this transaction.
func (s *Service) ManualMatch(ctx context.Context, reconciliationID, itemID, transactionID uuid.UUID, actor string) (*reconciliation.Item, error) {
	var matched *reconciliation.Item
	_, err := s.mutate(ctx, reconciliationID, func(uow repository.UnitOfWork, repo repository.ReconciliationRepository, _ *reconciliation.Reconciliation) error {
		item, err := repo.GetItem(ctx, reconciliationID, itemID)
		if err != nil {
			return err
		}
		txRepo, err := uow.TransactionRepository()
		if err != nil {
			return err
		}
		if _, err := txRepo.Get(ctx, transactionID); err != nil {
			return err
		}
		if item.MatchStatus == reconciliation.MatchManualMatched && item.MatchedTransactionID != nil && *item.MatchedTransactionID == transactionID {
			matched = item
			return nil
		}
		prev := item.MatchStatus
		if err := item.ManualMatch(transactionID, actor, s.now()); err != nil {
			return err
		}
		if err := repo.Claim(ctx, reconciliationID, transactionID, item.ID); err != nil {
			return err
		}
		if err := repo.UpdateItem(ctx, item, prev); err != nil {
			return err
		}
		matched = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ItemsMatched("manual", 1)
	s.logger.Info("item matched manually",
		"reconciliation_id", reconciliationID,
		"item_id", itemID,
		"transaction_id", transactionID,
		"actor", actor)
	return matched, nil
}

// Unmatch reverts an item to PENDING and releases its transaction.
func (s *Service) Unmatch(ctx context.Context, reconciliationID, itemID uuid.UUID, reason, actor string) (*reconciliation.Item, error) {
	return s.release(ctx, reconciliationID, itemID, func(item *reconciliation.Item) error {
		return item.Unmatch(reason, actor, s.now())
	})
}

// Dispute flags an item for investigation and releases its transaction.
func (s *Service) Dispute(ctx context.Context, reconciliationID, itemID uuid.UUID, reason, actor string) (*reconciliation.Item, error) {
	return s.release(ctx, reconciliationID, itemID, func(item *reconciliation.Item) error {
		return item.Dispute(reason, actor, s.now())
	})
}

func (s *Service) release(
	ctx context.Context,
	reconciliationID, itemID uuid.UUID,
	transition func(item *reconciliation.Item) error,
) (*reconciliation.Item, error) {
	var out *reconciliation.Item
	_, err := s.mutate(ctx, reconciliationID, func(_ repository.UnitOfWork, repo repository.ReconciliationRepository, _ *reconciliation.Reconciliation) error {
		item, err := repo.GetItem(ctx, reconciliationID, itemID)
		if err != nil {
			return err
		}
		prev := item.MatchStatus
		if err := transition(item); err != nil {
			return err
		}
		if err := repo.ReleaseClaim(ctx, reconciliationID, itemID); err != nil {
			return err
		}
		if err := repo.UpdateItem(ctx, item, prev); err != nil {
			return err
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("item released",
		"reconciliation_id", reconciliationID,
		"item_id", itemID,
		"status", out.MatchStatus,
		"reason", out.MatchReason)
	return out, nil
}

// Close confirms the reconciliation. PENDING items block closing unless
// force is set. CLOSED is terminal.
func (s *Service) Close(ctx context.Context, id uuid.UUID, actor string, force bool) (*reconciliation.Reconciliation, error) {
	var closed *reconciliation.Reconciliation
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		repo, err := uow.ReconciliationRepository()
		if err != nil {
			return err
		}
		rec, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		items, err := repo.Items(ctx, id, repository.ItemFilter{})
		if err != nil {
			return err
		}
		now := s.now()
		if err := rec.Close(items, actor, force, now); err != nil {
			return err
		}
		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		env, err := eventbus.NewEnvelope(events.ReconciliationClosed{
			ReconciliationID: rec.ID,
			TotalItems:       rec.TotalItems,
			MatchedItems:     rec.MatchedItems,
			Discrepancy:      money.Format(rec.Discrepancy),
			ClosedBy:         actor,
			Forced:           force,
			OccurredAt:       now,
		}, rec.ID, now)
		if err != nil {
			return err
		}
		outbox, err := uow.OutboxRepository()
		if err != nil {
			return err
		}
		if err := outbox.Add(ctx, env); err != nil {
			return err
		}
		closed = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("reconciliation closed",
		"reconciliation_id", id,
		"matched", closed.MatchedItems,
		"total", closed.TotalItems,
		"discrepancy", money.Format(closed.Discrepancy),
		"forced", force)
	return closed, nil
}
