package app

import (
	"context"

	"github.com/amirasaad/ledger/pkg/domain/events"
	"github.com/amirasaad/ledger/pkg/eventbus"
)

// setupEventBus registers the in-process subscribers. Downstream consumers
// attach to the bus transport directly.
func (a *App) setupEventBus() {
	bus := a.Deps.EventBus
	if bus == nil {
		return
	}
	logger := a.Deps.Logger.With("component", "events")

	for _, t := range []events.EventType{
		events.EventTypeDepositCompleted,
		events.EventTypeWithdrawalCompleted,
		events.EventTypeTransferCompleted,
		events.EventTypeReversalCompleted,
	} {
		bus.Register(t.String(), func(ctx context.Context, env eventbus.Envelope) error {
			var e events.TransactionCompleted
			if err := env.Decode(&e); err != nil {
				return err
			}
			logger.InfoContext(ctx, "transaction published",
				"event_type", env.Type,
				"transaction_id", e.TransactionID,
				"amount", e.Amount,
				"entries", len(e.Entries))
			return nil
		})
	}

	bus.Register(events.EventTypeTransactionFailed.String(), func(ctx context.Context, env eventbus.Envelope) error {
		var e events.TransactionFailed
		if err := env.Decode(&e); err != nil {
			return err
		}
		logger.WarnContext(ctx, "transaction failed",
			"transaction_id", e.TransactionID,
			"reason", e.Reason)
		return nil
	})

	bus.Register(events.EventTypeBalancesRebuilt.String(), func(ctx context.Context, env eventbus.Envelope) error {
		var e events.BalancesRebuilt
		if err := env.Decode(&e); err != nil {
			return err
		}
		logger.InfoContext(ctx, "balances rebuilt",
			"accounts_refreshed", e.AccountsRefreshed,
			"duration_ms", e.DurationMs)
		return nil
	})

	bus.Register(events.EventTypeReconciliationClosed.String(), func(ctx context.Context, env eventbus.Envelope) error {
		var e events.ReconciliationClosed
		if err := env.Decode(&e); err != nil {
			return err
		}
		logger.InfoContext(ctx, "reconciliation closed",
			"reconciliation_id", e.ReconciliationID,
			"matched", e.MatchedItems,
			"total", e.TotalItems,
			"discrepancy", e.Discrepancy,
			"forced", e.Forced)
		return nil
	})
}
