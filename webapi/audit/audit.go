// Package audit exposes the consistency auditor over HTTP.
package audit

import (
	auditsvc "github.com/amirasaad/ledger/pkg/service/audit"
	"github.com/amirasaad/ledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Routes registers:
//   - GET  /audit/consistency?detailed=true : Compare balances with the journal.
//   - POST /audit/rebuild                   : Rewrite every balance from the journal.
func Routes(app *fiber.App, svc *auditsvc.Service, protect fiber.Handler) {
	g := app.Group("/audit", protect)
	g.Get("/consistency", Consistency(svc))
	g.Post("/rebuild", Rebuild(svc))
}

// Consistency returns the health report. Mismatches are listed only when
// detailed is set.
// @Summary Check ledger consistency
// @Tags audit
// @Produce json
// @Param detailed query bool false "List every mismatching account"
// @Success 200 {object} common.Response "Consistency report"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /audit/consistency [get]
// @Security Bearer
func Consistency(svc *auditsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := svc.Check(c.UserContext(), c.QueryBool("detailed", false))
		if err != nil {
			log.Errorf("consistency check failed: %v", err)
			return common.ProblemDetailsJSON(c, "Consistency check failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, string(report.Status), report)
	}
}

// Rebuild recomputes all balances. A partial failure still returns the
// report of the accounts that were refreshed.
// @Summary Rebuild balances
// @Tags audit
// @Produce json
// @Success 200 {object} common.Response "Rebuild report"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /audit/rebuild [post]
// @Security Bearer
func Rebuild(svc *auditsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := svc.Rebuild(c.UserContext())
		if err != nil {
			log.Errorf("balance rebuild failed: %v", err)
			if report != nil {
				return common.ProblemDetailsJSON(c, "Balance rebuild incomplete", err, report)
			}
			return common.ProblemDetailsJSON(c, "Balance rebuild failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balances rebuilt", report)
	}
}
