// Package webapi serves the ledger over HTTP. Routes are grouped by domain:
//   - ledger: money movement and journal queries
//   - audit: consistency checks and balance rebuilds
//   - reconciliation: statement import and matching
package webapi

import (
	"github.com/amirasaad/ledger/pkg/app"
	"github.com/amirasaad/ledger/pkg/middleware"
	auditweb "github.com/amirasaad/ledger/webapi/audit"
	"github.com/amirasaad/ledger/webapi/common"
	ledgerweb "github.com/amirasaad/ledger/webapi/ledger"
	_ "github.com/amirasaad/ledger/webapi/docs"
	reconweb "github.com/amirasaad/ledger/webapi/reconciliation"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupApp builds the fiber app for a. Metrics are served from gatherer
// when it is not nil.
func SetupApp(a *app.App, gatherer prometheus.Gatherer) *fiber.App {
	var fiberApp *fiber.App
	if rl := a.Config.RateLimit; rl != nil {
		fiberApp = common.NewApp(rl.MaxRequests, rl.Window)
	} else {
		fiberApp = common.NewApp(0, 0)
	}
	if a.Config.Env != "test" {
		fiberApp.Use(logger.New())
	}

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Ledger API is running! 🚀")
	})
	fiberApp.Get("/swagger/*", swagger.New(swagger.Config{
		TryItOutEnabled:      true,
		WithCredentials:      true,
		PersistAuthorization: true,
	}))
	if gatherer != nil {
		fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	var secret string
	if a.Config.Auth != nil && a.Config.Auth.Jwt != nil {
		secret = a.Config.Auth.Jwt.Secret
	}
	protect := middleware.Protected(secret)

	ledgerweb.Routes(fiberApp, a.LedgerService, protect)
	auditweb.Routes(fiberApp, a.AuditService, protect)
	reconweb.Routes(fiberApp, a.ReconciliationService, protect)
	return fiberApp
}
