package main

import (
	"errors"
	"strconv"

	"github.com/amirasaad/ledger/infra/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the Postgres schema",
	}

	url := func() (string, error) {
		cfg, err := c.config()
		if err != nil {
			return "", err
		}
		if cfg.DB == nil || cfg.DB.Url == "" {
			return "", errors.New("DATABASE_URL is not set")
		}
		if cfg.DB.Driver == "sqlite" {
			return "", errors.New("sqlite databases are migrated automatically")
		}
		return cfg.DB.Url, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := url()
			if err != nil {
				return err
			}
			if err := migrations.Up(dsn); err != nil {
				return err
			}
			c.success("schema is up to date")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return errors.New("steps must be a positive integer")
				}
				steps = n
			}
			dsn, err := url()
			if err != nil {
				return err
			}
			if err := migrations.Down(dsn, steps); err != nil {
				return err
			}
			c.success("rolled back %d migration(s)", steps)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := url()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.Version(dsn)
			if err != nil {
				return err
			}
			if dirty {
				c.warning("schema version %d is dirty", v)
				return nil
			}
			c.success("schema version %d", v)
			return nil
		},
	})
	return cmd
}
