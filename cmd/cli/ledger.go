package main

import (
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/money"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type movementFlags struct {
	description string
	key         string
}

func (f *movementFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "description recorded on the transaction")
	cmd.Flags().StringVarP(&f.key, "idempotency-key", "k", "", "idempotency key for safe retries")
}

func newLedgerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Move money and verify transactions",
	}

	var dep, wd, tr movementFlags
	deposit := &cobra.Command{
		Use:   "deposit <account-id> <amount>",
		Short: "Credit an account from the cash account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("account", args[0])
			if err != nil {
				return err
			}
			amount, err := money.Parse(args[1])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			res, err := a.LedgerService.Deposit(cmd.Context(), dto.DepositCommand{
				AccountID: id, Amount: amount, Description: dep.description, UserID: c.actor, IdempotencyKey: dep.key,
			})
			return c.printResult(res, err)
		},
	}
	dep.bind(deposit)

	withdraw := &cobra.Command{
		Use:   "withdraw <account-id> <amount>",
		Short: "Debit an account to the cash account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("account", args[0])
			if err != nil {
				return err
			}
			amount, err := money.Parse(args[1])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			res, err := a.LedgerService.Withdraw(cmd.Context(), dto.WithdrawCommand{
				AccountID: id, Amount: amount, Description: wd.description, UserID: c.actor, IdempotencyKey: wd.key,
			})
			return c.printResult(res, err)
		},
	}
	wd.bind(withdraw)

	transfer := &cobra.Command{
		Use:   "transfer <from-account-id> <to-account-id> <amount>",
		Short: "Move money between two accounts",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseID("source account", args[0])
			if err != nil {
				return err
			}
			to, err := parseID("destination account", args[1])
			if err != nil {
				return err
			}
			amount, err := money.Parse(args[2])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			res, err := a.LedgerService.Transfer(cmd.Context(), dto.TransferCommand{
				FromAccountID: from, ToAccountID: to, Amount: amount,
				Description: tr.description, UserID: c.actor, IdempotencyKey: tr.key,
			})
			return c.printResult(res, err)
		},
	}
	tr.bind(transfer)

	var reason, reverseKey string
	reverse := &cobra.Command{
		Use:   "reverse <transaction-id>",
		Short: "Post the mirror image of a completed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("transaction", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			res, err := a.LedgerService.Reverse(cmd.Context(), dto.ReverseCommand{
				TransactionID: id, Reason: reason, UserID: c.actor, IdempotencyKey: reverseKey,
			})
			return c.printResult(res, err)
		},
	}
	reverse.Flags().StringVarP(&reason, "reason", "r", "", "why the transaction is reversed")
	reverse.Flags().StringVarP(&reverseKey, "idempotency-key", "k", "", "idempotency key for safe retries")
	_ = reverse.MarkFlagRequired("reason")

	verify := &cobra.Command{
		Use:   "verify <transaction-id>",
		Short: "Check that a transaction's debits equal its credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("transaction", args[0])
			if err != nil {
				return err
			}
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.LedgerService.VerifyDoubleEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			valid := green("yes")
			if !r.Valid {
				valid = red("no")
			}
			return c.table(pterm.TableData{
				{"Transaction", "Entries", "Debits", "Credits", "Difference", "Valid"},
				{id.String(), pterm.Sprint(r.EntryCount), r.TotalDebits.StringFixed(2),
					r.TotalCredits.StringFixed(2), r.Difference.StringFixed(2), valid},
			})
		},
	}

	cmd.AddCommand(deposit, withdraw, transfer, reverse, verify)
	return cmd
}

func (c *cli) printResult(res *dto.Result, err error) error {
	if err != nil {
		return err
	}
	if res.Failed() {
		c.warning("transaction %s FAILED: %s", res.TransactionID, res.Message)
		return nil
	}
	c.success("transaction %s %s", res.TransactionID, res.Status)
	return nil
}
