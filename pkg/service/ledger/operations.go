package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/events"
	ledgerdomain "github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/eventbus"
	"github.com/amirasaad/ledger/pkg/idempotency"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/amirasaad/ledger/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation names used for idempotency hashing, logs and metrics.
const (
	OpDeposit  = "deposit"
	OpWithdraw = "withdraw"
	OpTransfer = "transfer"
	OpReverse  = "reverse"
)

// movement is one money movement ready to be posted.
type movement struct {
	id          uuid.UUID
	txType      ledgerdomain.TransactionType
	amount      decimal.Decimal
	source      *uuid.UUID
	destination *uuid.UUID
	postings    []ledgerdomain.Posting
	description string
	actor       string
	key         string
	reversalOf  *uuid.UUID
	completed   string
	// customers must not be SYSTEM accounts.
	customers []uuid.UUID
	// onCompleted runs inside the unit of work after the entries are written.
	onCompleted func(ctx context.Context, uow repository.UnitOfWork, tx *ledgerdomain.Transaction) error
}

// movementHash is the part of a request that identifies it for idempotency.
// The actor is deliberately left out.
type movementHash struct {
	Accounts    []string `json:"accounts"`
	Amount      string   `json:"amount"`
	Description string   `json:"description"`
}

// Deposit credits cmd.AccountID and debits the cash account.
func (s *Service) Deposit(ctx context.Context, cmd dto.DepositCommand) (*dto.Result, error) {
	if err := validateAmount(cmd, cmd.Amount); err != nil {
		return nil, err
	}
	accountID := cmd.AccountID
	if err := s.rejectCashAccount(accountID); err != nil {
		return nil, err
	}
	m := movement{
		txType:      ledgerdomain.TransactionTypeDeposit,
		amount:      cmd.Amount,
		destination: &accountID,
		postings: []ledgerdomain.Posting{
			ledgerdomain.Debit(s.cfg.CashAccountID, cmd.Amount),
			ledgerdomain.Credit(accountID, cmd.Amount),
		},
		description: cmd.Description,
		actor:       cmd.UserID,
		key:         cmd.IdempotencyKey,
		completed:   "Deposit completed",
		customers:   []uuid.UUID{accountID},
	}
	hash := movementHash{Accounts: []string{accountID.String()}, Amount: money.Format(cmd.Amount), Description: cmd.Description}
	return s.run(ctx, OpDeposit, m.key, hash, func(ctx context.Context, uow repository.UnitOfWork) (*dto.Result, error) {
		return s.post(ctx, uow, m)
	})
}

// Withdraw debits cmd.AccountID and credits the cash account. A withdrawal
// that would overdraw the account returns a FAILED result.
func (s *Service) Withdraw(ctx context.Context, cmd dto.WithdrawCommand) (*dto.Result, error) {
	if err := validateAmount(cmd, cmd.Amount); err != nil {
		return nil, err
	}
	accountID := cmd.AccountID
	if err := s.rejectCashAccount(accountID); err != nil {
		return nil, err
	}
	m := movement{
		txType: ledgerdomain.TransactionTypeWithdrawal,
		amount: cmd.Amount,
		source: &accountID,
		postings: []ledgerdomain.Posting{
			ledgerdomain.Debit(accountID, cmd.Amount),
			ledgerdomain.Credit(s.cfg.CashAccountID, cmd.Amount),
		},
		description: cmd.Description,
		actor:       cmd.UserID,
		key:         cmd.IdempotencyKey,
		completed:   "Withdrawal completed",
		customers:   []uuid.UUID{accountID},
	}
	hash := movementHash{Accounts: []string{accountID.String()}, Amount: money.Format(cmd.Amount), Description: cmd.Description}
	return s.run(ctx, OpWithdraw, m.key, hash, func(ctx context.Context, uow repository.UnitOfWork) (*dto.Result, error) {
		return s.post(ctx, uow, m)
	})
}

// Transfer debits cmd.FromAccountID and credits cmd.ToAccountID.
func (s *Service) Transfer(ctx context.Context, cmd dto.TransferCommand) (*dto.Result, error) {
	if err := validateAmount(cmd, cmd.Amount); err != nil {
		return nil, err
	}
	from, to := cmd.FromAccountID, cmd.ToAccountID
	if from == to {
		return nil, domain.NewValidationError("to_account_id", "must differ from from_account_id")
	}
	if err := s.rejectCashAccount(from); err != nil {
		return nil, err
	}
	if err := s.rejectCashAccount(to); err != nil {
		return nil, err
	}
	m := movement{
		txType:      ledgerdomain.TransactionTypeTransfer,
		amount:      cmd.Amount,
		source:      &from,
		destination: &to,
		postings: []ledgerdomain.Posting{
			ledgerdomain.Debit(from, cmd.Amount),
			ledgerdomain.Credit(to, cmd.Amount),
		},
		description: cmd.Description,
		actor:       cmd.UserID,
		key:         cmd.IdempotencyKey,
		completed:   "Transfer completed",
		customers:   []uuid.UUID{from, to},
	}
	hash := movementHash{Accounts: []string{from.String(), to.String()}, Amount: money.Format(cmd.Amount), Description: cmd.Description}
	return s.run(ctx, OpTransfer, m.key, hash, func(ctx context.Context, uow repository.UnitOfWork) (*dto.Result, error) {
		return s.post(ctx, uow, m)
	})
}

// Reverse posts the mirror image of a COMPLETED transaction and links the two.
// It fails with ErrAlreadyReversed when the original already has a reversal;
// a reversal that would overdraw a customer account returns a FAILED result.
func (s *Service) Reverse(ctx context.Context, cmd dto.ReverseCommand) (*dto.Result, error) {
	if err := dto.Validate(cmd); err != nil {
		return nil, err
	}
	hash := struct {
		TransactionID string `json:"transaction_id"`
		Reason        string `json:"reason"`
	}{cmd.TransactionID.String(), cmd.Reason}

	return s.run(ctx, OpReverse, cmd.IdempotencyKey, hash, func(ctx context.Context, uow repository.UnitOfWork) (*dto.Result, error) {
		txRepo, err := uow.TransactionRepository()
		if err != nil {
			return nil, err
		}
		ledgerRepo, err := uow.LedgerRepository()
		if err != nil {
			return nil, err
		}
		orig, err := txRepo.Get(ctx, cmd.TransactionID)
		if err != nil {
			return nil, err
		}
		if !orig.IsCompleted() {
			return nil, domain.NewValidationError("transaction_id", "only COMPLETED transactions can be reversed")
		}
		if orig.Type == ledgerdomain.TransactionTypeReversal {
			return nil, domain.NewValidationError("transaction_id", "a reversal cannot be reversed")
		}
		if orig.ReversedBy != nil {
			return nil, fmt.Errorf("transaction %s: %w", orig.ID, domain.ErrAlreadyReversed)
		}
		entries, err := ledgerRepo.EntriesByTransaction(ctx, orig.ID)
		if err != nil {
			return nil, err
		}
		postings := make([]ledgerdomain.Posting, 0, len(entries))
		for _, e := range entries {
			side := ledgerdomain.EntryTypeCredit
			if e.EntryType == ledgerdomain.EntryTypeCredit {
				side = ledgerdomain.EntryTypeDebit
			}
			postings = append(postings, ledgerdomain.Posting{AccountID: e.AccountID, EntryType: side, Amount: e.Amount})
		}
		origID := orig.ID
		m := movement{
			txType:      ledgerdomain.TransactionTypeReversal,
			amount:      orig.Amount,
			source:      orig.DestinationAccountID,
			destination: orig.SourceAccountID,
			postings:    postings,
			description: cmd.Reason,
			actor:       cmd.UserID,
			key:         cmd.IdempotencyKey,
			reversalOf:  &origID,
			completed:   "Reversal completed",
			onCompleted: func(ctx context.Context, uow repository.UnitOfWork, tx *ledgerdomain.Transaction) error {
				repo, err := uow.TransactionRepository()
				if err != nil {
					return err
				}
				return repo.MarkReversed(ctx, origID, tx.ID)
			},
		}
		return s.post(ctx, uow, m)
	})
}

func validateAmount(cmd any, amount decimal.Decimal) error {
	if err := dto.Validate(cmd); err != nil {
		return err
	}
	if err := money.ValidatePositive(amount); err != nil {
		return domain.NewValidationError("amount", err.Error())
	}
	return nil
}

func (s *Service) rejectCashAccount(id uuid.UUID) error {
	if id == s.cfg.CashAccountID {
		return domain.NewValidationError("account_id", "the cash account cannot be the target of a customer operation")
	}
	return nil
}

// run wraps apply with idempotency, retries, logging and metrics.
func (s *Service) run(
	ctx context.Context,
	op, key string,
	request any,
	apply func(ctx context.Context, uow repository.UnitOfWork) (*dto.Result, error),
) (result *dto.Result, err error) {
	start := time.Now()
	log := s.logger.With("operation", op)
	if key != "" {
		log = log.With("idempotency_key", key)
	}
	defer func() {
		status := "ERROR"
		if err == nil {
			status = string(result.Status)
		}
		s.metrics.ObserveOperation(op, status, time.Since(start))
	}()

	var ticket *idempotency.Ticket
	if key != "" && s.guard != nil {
		hash, err := idempotency.Hash(op, request)
		if err != nil {
			return nil, err
		}
		ticket, err = s.guard.Begin(ctx, key, op, hash)
		if err != nil {
			log.Warn("idempotency guard rejected request", "error", err)
			return nil, err
		}
		if !ticket.Fresh {
			var replay dto.Result
			if err := json.Unmarshal(ticket.Response, &replay); err != nil {
				return nil, fmt.Errorf("decode stored response: %w", err)
			}
			log.Info("replayed idempotent response", "transaction_id", replay.TransactionID)
			return &replay, nil
		}
	}

	err = WithRetry(ctx, s.cfg.Retry, func() error {
		return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			res, err := apply(ctx, uow)
			if err != nil {
				return err
			}
			if ticket != nil {
				body, err := json.Marshal(res)
				if err != nil {
					return err
				}
				if err := s.guard.Complete(ctx, uow, ticket, body); err != nil {
					return err
				}
			}
			result = res
			return nil
		})
	})
	if err != nil {
		if ticket != nil {
			if abortErr := s.guard.Abort(context.WithoutCancel(ctx), ticket); abortErr != nil {
				log.Warn("failed to abort idempotency key", "error", abortErr)
			}
		}
		s.logFailure(log, err)
		return nil, err
	}
	s.guard.Release(ctx, ticket)

	log.Info("operation finished", "transaction_id", result.TransactionID, "status", result.Status, "message", result.Message)
	return result, nil
}

func (s *Service) logFailure(log *slog.Logger, err error) {
	switch domain.KindOf(err) {
	case domain.KindInvariant:
		log.Error("ledger invariant violated", "invariant_violation", true, "error", err)
	case domain.KindInternal:
		log.Error("operation failed", "error", err)
	default:
		log.Warn("operation rejected", "kind", domain.KindOf(err).String(), "error", err)
	}
}

// post applies a movement inside uow: lock, check, write, emit.
func (s *Service) post(ctx context.Context, uow repository.UnitOfWork, m movement) (*dto.Result, error) {
	accountRepo, err := uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	ledgerRepo, err := uow.LedgerRepository()
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(m.postings))
	for _, p := range m.postings {
		ids = append(ids, p.AccountID)
	}

	// Lock first so the account flags read below cannot change under us.
	balances, err := ledgerRepo.LockBalances(ctx, ids)
	if err != nil {
		return nil, err
	}
	accounts, err := accountRepo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
	}
	for _, id := range m.customers {
		if accounts[id].IsSystem() {
			return nil, domain.NewValidationError("account_id", fmt.Sprintf("account %s is a SYSTEM account", id))
		}
	}
	for _, id := range ids {
		if err := accounts[id].CanTransact(); err != nil {
			return s.reject(ctx, uow, m, MsgAccountNotActive, err)
		}
	}

	now := s.now()
	if m.id == uuid.Nil {
		m.id = uuid.New()
	}
	running := make(map[uuid.UUID]decimal.Decimal, len(balances))
	for id, b := range balances {
		running[id] = b.Available
	}
	entries := make([]ledgerdomain.Entry, 0, len(m.postings))
	for _, p := range m.postings {
		running[p.AccountID] = running[p.AccountID].Add(ledgerdomain.SignedAmount(p.EntryType, p.Amount))
		entries = append(entries, ledgerdomain.Entry{
			ID:            uuid.New(),
			TransactionID: m.id,
			AccountID:     p.AccountID,
			EntryType:     p.EntryType,
			Amount:        p.Amount,
			BalanceAfter:  running[p.AccountID],
			EntryDate:     now,
		})
	}
	for _, id := range ids {
		if !accounts[id].IsSystem() && running[id].IsNegative() {
			return s.reject(ctx, uow, m, MsgInsufficientBalance,
				fmt.Errorf("account %s balance %s: %w", id, money.Format(balances[id].Available), domain.ErrInsufficientFunds))
		}
	}

	tx := s.newTransaction(m, now)
	tx.Status = ledgerdomain.TransactionStatusCompleted
	tx.Message = m.completed
	tx.ProcessedAt = &now
	txRepo, err := uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	if err := txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	if err := ledgerRepo.AppendEntries(ctx, tx.ID, entries); err != nil {
		return nil, err
	}
	for _, id := range ledgerdomain.AccountIDs(entries) {
		delta := running[id].Sub(balances[id].Available)
		if _, err := ledgerRepo.UpdateBalance(ctx, id, delta, balances[id].Version, tx.ID); err != nil {
			return nil, err
		}
	}
	if m.onCompleted != nil {
		if err := m.onCompleted(ctx, uow, tx); err != nil {
			return nil, err
		}
	}
	if err := s.emit(ctx, uow, events.NewTransactionCompleted(tx, entries), tx.ID, now); err != nil {
		return nil, err
	}
	return &dto.Result{TransactionID: tx.ID, Status: tx.Status, Message: tx.Message}, nil
}

// reject records a FAILED transaction without entries.
func (s *Service) reject(ctx context.Context, uow repository.UnitOfWork, m movement, message string, cause error) (*dto.Result, error) {
	if !errors.Is(cause, domain.ErrInsufficientFunds) && !errors.Is(cause, domain.ErrAccountNotActive) {
		return nil, cause
	}
	now := s.now()
	if m.id == uuid.Nil {
		m.id = uuid.New()
	}
	tx := s.newTransaction(m, now)
	tx.Status = ledgerdomain.TransactionStatusFailed
	tx.Message = message
	tx.ProcessedAt = &now

	txRepo, err := uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	if err := txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}
	failed := events.TransactionFailed{
		TransactionID:   tx.ID,
		TransactionType: string(tx.Type),
		Amount:          money.Format(tx.Amount),
		Reason:          message,
		CreatedBy:       tx.CreatedBy,
		OccurredAt:      now,
	}
	if err := s.emit(ctx, uow, failed, tx.ID, now); err != nil {
		return nil, err
	}
	s.logger.Info("transaction rejected", "transaction_id", tx.ID, "type", tx.Type, "reason", cause)
	return &dto.Result{TransactionID: tx.ID, Status: tx.Status, Message: message}, nil
}

func (s *Service) newTransaction(m movement, now time.Time) *ledgerdomain.Transaction {
	tx := &ledgerdomain.Transaction{
		ID:                   m.id,
		Type:                 m.txType,
		Amount:               m.amount,
		Currency:             s.cfg.Currency,
		Status:               ledgerdomain.TransactionStatusPending,
		SourceAccountID:      m.source,
		DestinationAccountID: m.destination,
		Description:          m.description,
		CreatedBy:            m.actor,
		ReversalOf:           m.reversalOf,
		CreatedAt:            now,
	}
	if m.key != "" {
		key := m.key
		tx.IdempotencyKey = &key
	}
	return tx
}

func (s *Service) emit(ctx context.Context, uow repository.UnitOfWork, event events.Event, aggregateID uuid.UUID, now time.Time) error {
	env, err := eventbus.NewEnvelope(event, aggregateID, now)
	if err != nil {
		return err
	}
	outbox, err := uow.OutboxRepository()
	if err != nil {
		return err
	}
	return outbox.Add(ctx, env)
}
