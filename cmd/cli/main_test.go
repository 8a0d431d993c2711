package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/middleware"
	"github.com/amirasaad/ledger/pkg/repository"
	pkgtestutils "github.com/amirasaad/ledger/pkg/testutils"
	"github.com/amirasaad/ledger/webapi/testutils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

var uuidPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

type CLITestSuite struct {
	testutils.E2ETestSuite
}

func TestCLISuite(t *testing.T) {
	pterm.DisableStyling()
	suite.Run(t, new(CLITestSuite))
}

// run executes one command line against the suite's application.
func (s *CLITestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer
	c := &cli{out: &out, cfg: testutils.TestConfig(), app: s.App}
	root := newRootCmd(c)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (s *CLITestSuite) mustRun(args ...string) string {
	out, err := s.run(args...)
	s.Require().NoError(err, out)
	return out
}

func (s *CLITestSuite) TestAccountOpenAndFreeze() {
	out := s.mustRun("account", "open", "--owner", "customer:42")
	s.Contains(out, "opened CUSTOMER account")
	id := uuidPattern.FindString(out)
	s.Require().NotEmpty(id)

	s.mustRun("account", "freeze", id)
	out = s.mustRun("ledger", "deposit", id, "10")
	s.Contains(out, "FAILED")

	s.mustRun("account", "unfreeze", id)
	out = s.mustRun("ledger", "deposit", id, "10")
	s.Contains(out, "COMPLETED")

	s.mustRun("account", "status", id, "suspended")
	repo, err := s.App.Deps.Uow.AccountRepository()
	s.Require().NoError(err)
	acc, err := repo.Get(s.T().Context(), uuid.MustParse(id))
	s.Require().NoError(err)
	s.Equal(ledger.AccountStatusSuspended, acc.Status)
}

func (s *CLITestSuite) TestDepositWithdrawAndBalance() {
	acc := s.OpenAccount()
	s.mustRun("ledger", "deposit", acc.ID.String(), "250.00", "-d", "salary", "-k", "cli-dep-1")
	s.mustRun("ledger", "deposit", acc.ID.String(), "250.00", "-d", "salary", "-k", "cli-dep-1")

	out := s.mustRun("ledger", "withdraw", acc.ID.String(), "1000")
	s.Contains(out, "Insufficient balance")

	out = s.mustRun("account", "balance", acc.ID.String())
	s.Contains(out, "250.00")

	out = s.mustRun("account", "entries", acc.ID.String())
	s.Equal(1, strings.Count(out, "CREDIT"))
}

func (s *CLITestSuite) TestTransferReverseAndVerify() {
	from, to := s.OpenAccount(), s.OpenAccount()
	s.Deposit(from, "100")

	out := s.mustRun("ledger", "transfer", from.ID.String(), to.ID.String(), "40")
	txID := uuidPattern.FindString(out)
	s.Require().NotEmpty(txID)

	out = s.mustRun("ledger", "verify", txID)
	s.Contains(out, "yes")

	_, err := s.run("ledger", "reverse", txID)
	s.ErrorContains(err, `required flag(s) "reason" not set`)

	s.mustRun("ledger", "reverse", txID, "--reason", "sent to the wrong account")
	out = s.mustRun("account", "balance", to.ID.String())
	s.Contains(out, "0.00")
}

func (s *CLITestSuite) TestInvalidIDs() {
	_, err := s.run("account", "balance", "nope")
	s.ErrorContains(err, `invalid account id "nope"`)

	_, err = s.run("ledger", "deposit", uuid.NewString(), "abc")
	s.Error(err)

	_, err = s.run("account", "balance", uuid.NewString())
	s.Error(err)
}

func (s *CLITestSuite) TestAuditCheckAndRebuild() {
	acc := s.OpenAccount()
	s.Deposit(acc, "75")

	out := s.mustRun("audit", "check")
	s.Contains(out, "HEALTHY")

	pkgtestutils.CorruptBalance(s.T(), s.DB, acc.ID, "1")
	out = s.mustRun("audit", "check", "--detailed")
	s.Contains(out, acc.ID.String())
	s.NotContains(out, "HEALTHY")

	out = s.mustRun("audit", "rebuild")
	s.Contains(out, "refreshed 2 accounts")
	s.Contains(s.mustRun("audit", "check"), "HEALTHY")
}

func (s *CLITestSuite) TestOutboxDispatch() {
	s.Deposit(s.OpenAccount(), "5")
	out := s.mustRun("outbox", "dispatch")
	s.NotContains(out, "published 0 events")

	out = s.mustRun("outbox", "dispatch")
	s.Contains(out, "published 0 events")
}

func (s *CLITestSuite) TestReconcileFlow() {
	acc := s.OpenAccount()
	s.Deposit(acc, "150.00")

	out := s.mustRun("reconcile", "create", "--name", "October", "--source", "bank-csv")
	recID := uuidPattern.FindString(out)
	s.Require().NotEmpty(recID)

	path := filepath.Join(s.T().TempDir(), "statement.csv")
	today := time.Now().UTC().Format(time.DateOnly)
	s.Require().NoError(os.WriteFile(path, []byte(
		"date,description,amount,reference\n"+
			today+",seed,150.00,\n"+
			today+",zero,0,\n"), 0o600))

	out = s.mustRun("reconcile", "import", recID, path)
	s.Contains(out, "imported 1 items")
	s.Contains(out, "1 rows rejected")

	s.mustRun("recon", "auto-match", recID)
	items, err := s.App.ReconciliationService.Items(s.T().Context(), uuid.MustParse(recID), repository.ItemFilter{})
	s.Require().NoError(err)
	s.Require().Len(items, 1)
	s.Equal(reconciliation.MatchAutoMatched, items[0].MatchStatus)
	itemID := items[0].ID.String()

	out = s.mustRun("reconcile", "items", recID, "--status", "auto_matched")
	s.Contains(out, itemID)

	out = s.mustRun("reconcile", "unmatch", recID, itemID, "-r", "wrong invoice")
	s.Contains(out, "PENDING")
	_, err = s.run("reconcile", "close", recID)
	s.ErrorContains(err, "pending items")

	out = s.mustRun("reconcile", "dispute", recID, itemID, "-r", "customer complaint")
	s.Contains(out, "DISPUTED")
	out = s.mustRun("reconcile", "close", recID, "--force")
	s.Contains(out, "closed October: 0/1 matched")
}

func (s *CLITestSuite) TestIdempotencyPurge() {
	out := s.mustRun("idempotency", "purge")
	s.Contains(out, "purged 0 idempotency keys")
}

func (s *CLITestSuite) TestTokenSign() {
	out := s.mustRun("token", "sign", "--user", "ops-7", "--ttl", "5m")
	token, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (any, error) {
		return []byte(testutils.Secret), nil
	})
	s.Require().NoError(err)
	claims, ok := token.Claims.(jwt.MapClaims)
	s.Require().True(ok)
	s.Equal("ops-7", claims[middleware.UserIDClaim])
}

func (s *CLITestSuite) TestMigrateNeedsDatabaseURL() {
	_, err := s.run("migrate", "up")
	s.ErrorContains(err, "DATABASE_URL is not set")
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Invalid id", capitalize("invalid id"))
	assert.Equal(t, "Ünicode", capitalize("ünicode"))
	assert.Empty(t, capitalize(""))
}
