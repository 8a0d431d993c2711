package main

import (
	"github.com/spf13/cobra"
)

func newOutboxCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Publish pending domain events",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dispatch",
		Short: "Publish every unpublished event once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.application()
			if err != nil {
				return err
			}
			total := 0
			for {
				n, err := a.Dispatcher.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				if n == 0 {
					break
				}
				total += n
			}
			c.success("published %d events", total)
			return nil
		},
	})
	return cmd
}
