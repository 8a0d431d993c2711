package main

import (
	"fmt"

	"github.com/amirasaad/ledger/pkg/service/audit"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newAuditCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check and repair materialized balances",
	}

	var detailed bool
	check := &cobra.Command{
		Use:   "check",
		Short: "Compare every stored balance with its journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.AuditService.Check(cmd.Context(), detailed)
			if err != nil {
				return err
			}
			status := string(r.Status)
			switch r.Status {
			case audit.StatusHealthy:
				status = green(status)
			case audit.StatusWarning:
				status = yellow(status)
			default:
				status = red(status)
			}
			if err := c.table(pterm.TableData{
				{"Status", "Accounts", "Consistent", "Mismatches"},
				{status, fmt.Sprint(r.TotalAccounts), fmt.Sprint(r.ConsistentAccounts), fmt.Sprint(r.MismatchCount)},
			}); err != nil {
				return err
			}
			if len(r.Mismatches) == 0 {
				return nil
			}
			data := pterm.TableData{{"Account", "Stored", "Computed", "Difference"}}
			for _, m := range r.Mismatches {
				data = append(data, []string{
					m.AccountID.String(), m.Stored.StringFixed(2), m.Computed.StringFixed(2), m.Difference.StringFixed(2),
				})
			}
			return c.table(data)
		},
	}
	check.Flags().BoolVar(&detailed, "detailed", false, "list every mismatching account")

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every balance from the journal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			r, err := a.AuditService.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			c.success("refreshed %d accounts in %dms", r.AccountsRefreshed, r.DurationMs)
			return nil
		},
	}

	cmd.AddCommand(check, rebuild)
	return cmd
}
