package main

import (
	"fmt"
	"strings"

	ledgerdomain "github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newAccountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Open, freeze and inspect accounts",
	}

	var owner string
	var system bool
	open := &cobra.Command{
		Use:   "open",
		Short: "Open an ACTIVE account with a zero balance",
		Long: `Open an ACTIVE account with a zero balance.
With --system the bank's cash account is opened under LEDGER_CASH_ACCOUNT_ID.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			kind := ledgerdomain.AccountKindCustomer
			if system {
				kind = ledgerdomain.AccountKindSystem
			}
			acc, err := a.LedgerService.OpenAccount(cmd.Context(), owner, kind)
			if err != nil {
				return err
			}
			c.success("opened %s account %s for %s", acc.Kind, acc.ID, acc.OwnerRef)
			return nil
		},
	}
	open.Flags().StringVarP(&owner, "owner", "o", "", "owner reference")
	open.Flags().BoolVar(&system, "system", false, "open the SYSTEM cash account")
	_ = open.MarkFlagRequired("owner")

	cmd.AddCommand(
		open,
		balanceLockCmd(c, "freeze", "Lock an account's balance", true),
		balanceLockCmd(c, "unfreeze", "Unlock an account's balance", false),
		&cobra.Command{
			Use:       "status <account-id> <ACTIVE|SUSPENDED|CLOSED>",
			Short:     "Change an account's lifecycle status",
			Args:      cobra.ExactArgs(2),
			ValidArgs: []string{"ACTIVE", "SUSPENDED", "CLOSED"},
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("account", args[0])
				if err != nil {
					return err
				}
				a, err := c.application()
				if err != nil {
					return err
				}
				status := ledgerdomain.AccountStatus(strings.ToUpper(args[1]))
				if err := a.LedgerService.SetStatus(cmd.Context(), id, status); err != nil {
					return err
				}
				c.success("account %s is now %s", id, status)
				return nil
			},
		},
		&cobra.Command{
			Use:   "balance <account-id>",
			Short: "Show the materialized balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("account", args[0])
				if err != nil {
					return err
				}
				a, err := c.application()
				if err != nil {
					return err
				}
				b, err := a.LedgerService.GetBalance(cmd.Context(), id)
				if err != nil {
					return err
				}
				return c.table(pterm.TableData{
					{"Account", "Available", "Version", "Calculated"},
					{b.AccountID.String(), b.Available.StringFixed(2), fmt.Sprint(b.Version), b.LastCalculatedAt.Format("2006-01-02 15:04:05")},
				})
			},
		},
		entriesCmd(c),
	)
	return cmd
}

func balanceLockCmd(c *cli, use, short string, locked bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("account", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			if err := a.LedgerService.SetBalanceLocked(cmd.Context(), id, locked); err != nil {
				return err
			}
			c.success("account %s %sd", id, use)
			return nil
		},
	}
}

func entriesCmd(c *cli) *cobra.Command {
	var pageSize, max int
	var cursor string
	cmd := &cobra.Command{
		Use:   "entries <account-id>",
		Short: "List an account's journal, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("account", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			data := pterm.TableData{{"Date", "Transaction", "Type", "Amount", "Balance after"}}
			it := a.LedgerService.Entries(id, pageSize, cursor)
			for (max <= 0 || len(data) <= max) && it.Next(cmd.Context()) {
				e := it.Entry()
				amount := e.Amount.StringFixed(2)
				if e.EntryType == ledgerdomain.EntryTypeDebit {
					amount = red("-" + amount)
				} else {
					amount = green(amount)
				}
				data = append(data, []string{
					e.EntryDate.Format("2006-01-02 15:04:05"),
					e.TransactionID.String(),
					string(e.EntryType),
					amount,
					e.BalanceAfter.StringFixed(2),
				})
			}
			if err := it.Err(); err != nil {
				return err
			}
			if err := c.table(data); err != nil {
				return err
			}
			if next := it.Cursor(); next != "" && max > 0 && len(data) > max {
				pterm.Info.WithWriter(c.out).Printfln("resume with --cursor %s", next)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "entries fetched per query")
	cmd.Flags().IntVarP(&max, "max", "n", 0, "stop after this many entries (0 for all)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume after this cursor")
	return cmd
}

func parseID(what, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q", what, s)
	}
	return id, nil
}
