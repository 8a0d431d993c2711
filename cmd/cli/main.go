// Command cli operates the ledger: schema migrations, account seeding,
// money movement, audits, outbox draining and reconciliations.
package main

import (
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/amirasaad/ledger/infra/initializer"
	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/pkg/config"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	faint  = color.New(color.FgHiBlack).SprintFunc()
)

// cli carries the lazily built dependencies of one invocation.
type cli struct {
	envFile string
	actor   string
	out     io.Writer

	cfg *config.App
	rt  *initializer.Runtime
	app *app.App
}

func main() {
	pterm.Error.Prefix = pterm.Prefix{
		Text:  " ERROR ",
		Style: pterm.NewStyle(pterm.BgLightRed, pterm.FgBlack),
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		pterm.DisableStyling()
		color.NoColor = true
	}
	c := &cli{out: os.Stdout}
	err := newRootCmd(c).Execute()
	if c.rt != nil {
		_ = c.rt.Close()
	}
	if err != nil {
		pterm.Error.Println(capitalize(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledger",
		Short:         "ledger operates the double-entry ledger and its reconciliations",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&c.envFile, "env-file", "e", ".env", "environment file to load")
	root.PersistentFlags().StringVar(&c.actor, "actor", "cli", "actor recorded on changes")

	root.AddCommand(
		newMigrateCmd(c),
		newAccountCmd(c),
		newLedgerCmd(c),
		newAuditCmd(c),
		newOutboxCmd(c),
		newReconcileCmd(c),
		newIdempotencyCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) config() (*config.App, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(c.envFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	c.cfg = cfg
	return cfg, nil
}

// application builds the services on first use.
func (c *cli) application() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	rt, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return nil, err
	}
	c.rt = rt
	a, err := app.New(rt.Deps, cfg)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) success(format string, a ...any) {
	pterm.Success.WithWriter(c.out).Printfln(format, a...)
}

func (c *cli) warning(format string, a ...any) {
	pterm.Warning.WithWriter(c.out).Printfln(format, a...)
}

func (c *cli) table(data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(c.out).WithData(data).Render()
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
