package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/repository"
	reconsvc "github.com/amirasaad/ledger/pkg/service/reconciliation"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newReconcileCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reconcile",
		Aliases: []string{"recon"},
		Short:   "Match external statements against the ledger",
	}

	var name, source string
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a reconciliation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.ReconciliationService.Create(cmd.Context(), dto.CreateReconciliation{
				Name: name, Source: source, UserID: c.actor,
			})
			if err != nil {
				return err
			}
			c.success("opened reconciliation %s", r.ID)
			return nil
		},
	}
	create.Flags().StringVarP(&name, "name", "n", "", "reconciliation name")
	create.Flags().StringVarP(&source, "source", "s", "", "statement source, e.g. a bank name")
	_ = create.MarkFlagRequired("name")

	importCmd := &cobra.Command{
		Use:   "import <reconciliation-id> <statement.csv>",
		Short: "Import statement lines from a CSV with date,description,amount,reference columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("reconciliation", args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.ReconciliationService.ImportCSV(cmd.Context(), id, f)
			if err != nil {
				return err
			}
			c.success("imported %d items", r.Imported)
			if len(r.Errors) == 0 {
				return nil
			}
			data := pterm.TableData{{"Row", "Reason"}}
			for _, e := range r.Errors {
				data = append(data, []string{fmt.Sprint(e.Row), e.Reason})
			}
			c.warning("%d rows rejected", len(r.Errors))
			return c.table(data)
		},
	}

	autoMatch := &cobra.Command{
		Use:   "auto-match <reconciliation-id>",
		Short: "Match pending items to ledger transactions by score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("reconciliation", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.ReconciliationService.AutoMatch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.table(pterm.TableData{
				{"Considered", "Matched", "Suggested", "Unmatched"},
				{fmt.Sprint(r.Considered), fmt.Sprint(r.Matched), fmt.Sprint(r.Suggested), fmt.Sprint(r.Unmatched)},
			})
		},
	}

	var status string
	var limit, offset int
	items := &cobra.Command{
		Use:   "items <reconciliation-id>",
		Short: "List statement items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("reconciliation", args[0])
			if err != nil {
				return err
			}
			filter := repository.ItemFilter{Limit: limit, Offset: offset}
			if status != "" {
				s := reconciliation.MatchStatus(strings.ToUpper(status))
				filter.Status = &s
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			list, err := a.ReconciliationService.Items(cmd.Context(), id, filter)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Line", "Item", "Date", "Amount", "Description", "Status", "Transaction", "Confidence"}}
			for _, it := range list {
				data = append(data, itemRow(it))
			}
			return c.table(data)
		},
	}
	items.Flags().StringVar(&status, "status", "", "only items in this match status")
	items.Flags().IntVar(&limit, "limit", 100, "page size")
	items.Flags().IntVar(&offset, "offset", 0, "items to skip")

	match := &cobra.Command{
		Use:   "match <reconciliation-id> <item-id> <transaction-id>",
		Short: "Bind an item to a transaction by hand",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "reconciliation", "item", "transaction")
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			it, err := a.ReconciliationService.ManualMatch(cmd.Context(), ids[0], ids[1], ids[2], c.actor)
			if err != nil {
				return err
			}
			c.success("item %s is %s", it.ID, it.MatchStatus)
			return nil
		},
	}

	var forceClose bool
	closeCmd := &cobra.Command{
		Use:   "close <reconciliation-id>",
		Short: "Close a reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("reconciliation", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.ReconciliationService.Close(cmd.Context(), id, c.actor, forceClose)
			if err != nil {
				return err
			}
			c.success("closed %s: %d/%d matched, discrepancy %s",
				r.Name, r.MatchedItems, r.TotalItems, r.Discrepancy.StringFixed(2))
			return nil
		},
	}
	closeCmd.Flags().BoolVar(&forceClose, "force", false, "close even with unresolved items")

	cmd.AddCommand(
		create,
		importCmd,
		autoMatch,
		items,
		match,
		releaseCmd(c, "unmatch", "Return a matched item to PENDING", (*reconsvc.Service).Unmatch),
		releaseCmd(c, "dispute", "Flag an item as disputed", (*reconsvc.Service).Dispute),
		closeCmd,
	)
	return cmd
}

type releaseFunc func(svc *reconsvc.Service, ctx context.Context, reconciliationID, itemID uuid.UUID, reason, actor string) (*reconciliation.Item, error)

func releaseCmd(c *cli, use, short string, fn releaseFunc) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <reconciliation-id> <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args, "reconciliation", "item")
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			it, err := fn(a.ReconciliationService, cmd.Context(), ids[0], ids[1], reason, c.actor)
			if err != nil {
				return err
			}
			c.success("item %s is %s", it.ID, it.MatchStatus)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the item is changed")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func itemRow(it reconciliation.Item) []string {
	tx, confidence := "", ""
	switch {
	case it.MatchedTransactionID != nil:
		tx = it.MatchedTransactionID.String()
	case it.SuggestedTransactionID != nil:
		tx = faint(it.SuggestedTransactionID.String() + " (suggested)")
	}
	if it.MatchConfidence != nil {
		confidence = fmt.Sprintf("%.0f", *it.MatchConfidence)
	}
	return []string{
		fmt.Sprint(it.Line),
		it.ID.String(),
		it.TransactionDate.Format("2006-01-02"),
		it.Amount.StringFixed(2),
		it.Description,
		string(it.MatchStatus),
		tx,
		confidence,
	}
}

func parseIDs(args []string, names ...string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		id, err := parseID(name, args[i])
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
