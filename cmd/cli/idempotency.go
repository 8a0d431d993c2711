package main

import "github.com/spf13/cobra"

func newIdempotencyCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Maintain stored idempotency keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired idempotency keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			n, err := a.Guard.Purge(cmd.Context())
			if err != nil {
				return err
			}
			c.success("purged %d idempotency keys", n)
			return nil
		},
	})
	return cmd
}
