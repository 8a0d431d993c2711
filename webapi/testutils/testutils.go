// Package testutils provides an end-to-end suite that serves the full HTTP
// API over a migrated database.
package testutils

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	infraeventbus "github.com/amirasaad/ledger/infra/eventbus"
	"github.com/amirasaad/ledger/infra/lock"
	infrarepo "github.com/amirasaad/ledger/infra/repository"
	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/pkg/config"
	"github.com/amirasaad/ledger/pkg/domain/ledger"
	"github.com/amirasaad/ledger/pkg/middleware"
	pkgtestutils "github.com/amirasaad/ledger/pkg/testutils"
	"github.com/amirasaad/ledger/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// Secret signs the suite's tokens.
const Secret = "e2e-secret"

// E2ETestSuite serves the API over sqlite, or over a Postgres container when
// E2E_POSTGRES is set.
type E2ETestSuite struct {
	suite.Suite
	DB    *gorm.DB
	App   *app.App
	Fiber *fiber.App
	Bus   *infraeventbus.MemoryEventBus
	Token string
}

func (s *E2ETestSuite) SetupTest() {
	if os.Getenv("E2E_POSTGRES") != "" {
		s.DB = pkgtestutils.NewPostgresDB(s.T())
	} else {
		s.DB = pkgtestutils.NewTestDB(s.T())
	}
	pkgtestutils.SeedCashAccount(s.T(), s.DB)

	registry := prometheus.NewRegistry()
	s.Bus = infraeventbus.NewWithMemory(slog.Default())
	a, err := app.New(&app.Deps{
		Uow:      infrarepo.NewUoW(s.DB),
		Locker:   lock.NewMemoryLocker(),
		EventBus: s.Bus,
		Registry: registry,
		Logger:   slog.Default(),
	}, TestConfig())
	s.Require().NoError(err)
	s.App = a
	s.Fiber = webapi.SetupApp(a, registry)

	s.Token, err = middleware.Sign(Secret, "ops-e2e", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	s.Require().NoError(err)
}

// TestConfig is the configuration the suite runs with.
func TestConfig() *config.App {
	return &config.App{
		Env:       "test",
		Auth:      &config.Auth{Jwt: &config.Jwt{Secret: Secret, Expiry: time.Hour}},
		RateLimit: &config.RateLimit{MaxRequests: 10000, Window: time.Minute},
		Ledger:    &config.Ledger{CashAccountID: pkgtestutils.CashAccountID.String(), Currency: "USD"},
		Outbox:    &config.Outbox{BatchSize: 100, MaxAttempts: 10},
	}
}

// Do sends an authenticated JSON request.
func (s *E2ETestSuite) Do(method, path, body string) *http.Response {
	return pkgtestutils.MakeRequestWithApp(s.Fiber, method, path, body, s.Token)
}

// DoWithHeaders sends an authenticated request with extra headers.
func (s *E2ETestSuite) DoWithHeaders(method, path, body string, headers map[string]string) *http.Response {
	return pkgtestutils.MakeRequestWithHeaders(s.Fiber, method, path, body, s.Token, headers)
}

// OpenAccount opens an ACTIVE customer account.
func (s *E2ETestSuite) OpenAccount() *ledger.Account {
	return pkgtestutils.SeedAccount(s.T(), s.DB)
}

// Deposit funds account through the API and asserts it completed.
func (s *E2ETestSuite) Deposit(account *ledger.Account, amount string) {
	resp := s.Do(fiber.MethodPost, "/ledger/deposit",
		fmt.Sprintf(`{"account_id":%q,"amount":%q,"description":"seed"}`, account.ID, amount))
	defer resp.Body.Close() //nolint:errcheck
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)
}
