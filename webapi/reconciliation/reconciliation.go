// Package reconciliation exposes the reconciliation matcher over HTTP.
package reconciliation

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/domain/reconciliation"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/middleware"
	"github.com/amirasaad/ledger/pkg/repository"
	reconsvc "github.com/amirasaad/ledger/pkg/service/reconciliation"
	"github.com/amirasaad/ledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// Routes registers the reconciliation endpoints behind protect.
//
// Routes:
//   - POST /reconciliations                               : Open a reconciliation.
//   - GET  /reconciliations/:id                           : Read aggregates.
//   - POST /reconciliations/:id/items                     : Import a CSV statement.
//   - GET  /reconciliations/:id/items                     : List items, ?status&limit&offset.
//   - POST /reconciliations/:id/auto-match                : Score and match pending items.
//   - POST /reconciliations/:id/items/:itemId/match       : Manually match an item.
//   - POST /reconciliations/:id/items/:itemId/unmatch     : Revert an item to PENDING.
//   - POST /reconciliations/:id/items/:itemId/dispute     : Flag an item as DISPUTED.
//   - POST /reconciliations/:id/close                     : Close the reconciliation.
func Routes(app *fiber.App, svc *reconsvc.Service, protect fiber.Handler) {
	g := app.Group("/reconciliations", protect)
	g.Post("/", Create(svc))
	g.Get("/:id", Get(svc))
	g.Post("/:id/items", Import(svc))
	g.Get("/:id/items", Items(svc))
	g.Post("/:id/auto-match", AutoMatch(svc))
	g.Post("/:id/items/:itemId/match", Match(svc))
	g.Post("/:id/items/:itemId/unmatch", Unmatch(svc))
	g.Post("/:id/items/:itemId/dispute", Dispute(svc))
	g.Post("/:id/close", Close(svc))
}

// Create opens an empty reconciliation.
// @Summary Create a reconciliation
// @Tags reconciliations
// @Accept json
// @Produce json
// @Param request body CreateRequest true "Reconciliation"
// @Success 201 {object} common.Response{data=ReconciliationDTO} "Reconciliation created"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /reconciliations [post]
// @Security Bearer
func Create(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[CreateRequest](c)
		if input == nil {
			return err
		}
		rec, err := svc.Create(c.UserContext(), dto.CreateReconciliation{
			Name:   input.Name,
			Source: input.Source,
			UserID: actor,
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to create reconciliation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Reconciliation created", toReconciliationDTO(rec))
	}
}

func Get(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
		}
		rec, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch reconciliation", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Reconciliation", toReconciliationDTO(rec))
	}
}

// Import reads a CSV statement from the request body, or from the "file"
// field of a multipart form. Malformed rows are reported individually.
// @Summary Import statement items
// @Description Accepts a text/csv body or a multipart "file" field with date,description,amount,reference columns.
// @Tags reconciliations
// @Accept text/csv
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Reconciliation ID"
// @Success 201 {object} common.Response "All rows imported"
// @Success 207 {object} common.Response "Some rows rejected"
// @Failure 400 {object} common.ProblemDetails "Invalid statement"
// @Failure 409 {object} common.ProblemDetails "Reconciliation closed"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /reconciliations/{id}/items [post]
// @Security Bearer
func Import(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
		}
		body, err := statementBody(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid statement", err)
		}
		report, err := svc.ImportCSV(c.UserContext(), id, body)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Import failed", err)
		}
		status := fiber.StatusCreated
		if len(report.Errors) > 0 {
			status = fiber.StatusMultiStatus
		}
		return common.SuccessResponseJSON(c, status, "Statement imported", report)
	}
}

func statementBody(c *fiber.Ctx) (io.Reader, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, domain.NewValidationError("file", "multipart field is missing")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(raw), nil
	}
	if len(c.Body()) == 0 {
		return nil, domain.NewValidationError("file", "request body is empty")
	}
	return bytes.NewReader(c.Body()), nil
}

// Items lists a reconciliation's items in line order.
func Items(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
		}
		filter := repository.ItemFilter{Limit: c.QueryInt("limit", 0), Offset: c.QueryInt("offset", 0)}
		if s := c.Query("status"); s != "" {
			status, err := parseStatus(s)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid status filter", err)
			}
			filter.Status = &status
		}
		items, err := svc.Items(c.UserContext(), id, filter)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list items", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Reconciliation items", toItemDTOs(items))
	}
}

func parseStatus(s string) (reconciliation.MatchStatus, error) {
	status := reconciliation.MatchStatus(strings.ToUpper(s))
	switch status {
	case reconciliation.MatchPending, reconciliation.MatchAutoMatched, reconciliation.MatchManualMatched,
		reconciliation.MatchUnmatched, reconciliation.MatchDisputed:
		return status, nil
	}
	return "", domain.NewValidationError("status", "unknown match status "+s)
}

// AutoMatch runs one scoring pass over the pending items.
// @Summary Auto-match pending items
// @Tags reconciliations
// @Produce json
// @Param id path string true "Reconciliation ID"
// @Success 200 {object} common.Response "Auto-match report"
// @Failure 409 {object} common.ProblemDetails "Reconciliation closed"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /reconciliations/{id}/auto-match [post]
// @Security Bearer
func AutoMatch(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
		}
		report, err := svc.AutoMatch(c.UserContext(), id)
		if err != nil {
			log.Errorf("auto-match of %s failed: %v", id, err)
			return common.ProblemDetailsJSON(c, "Auto-match failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Auto-match completed", report)
	}
}

// Match is the operator override that binds an item to a transaction.
func Match(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref, err := itemRequest(c)
		if ref == nil {
			return err
		}
		input, err := common.BindAndValidate[MatchRequest](c)
		if input == nil {
			return err
		}
		item, err := svc.ManualMatch(c.UserContext(), ref.recID, ref.itemID, uuid.MustParse(input.TransactionID), ref.actor)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Manual match failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Item matched", toItemDTO(item))
	}
}

func Unmatch(svc *reconsvc.Service) fiber.Handler {
	return withReason(svc.Unmatch, "Unmatch failed", "Item unmatched")
}

func Dispute(svc *reconsvc.Service) fiber.Handler {
	return withReason(svc.Dispute, "Dispute failed", "Item disputed")
}

func withReason(
	fn func(ctx context.Context, recID, itemID uuid.UUID, reason, actor string) (*reconciliation.Item, error),
	failTitle, okMessage string,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ref, err := itemRequest(c)
		if ref == nil {
			return err
		}
		input, err := common.BindAndValidate[ReasonRequest](c)
		if input == nil {
			return err
		}
		item, err := fn(c.UserContext(), ref.recID, ref.itemID, input.Reason, ref.actor)
		if err != nil {
			return common.ProblemDetailsJSON(c, failTitle, err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, okMessage, toItemDTO(item))
	}
}

// Close closes the reconciliation. Pending items block the close unless
// force is set.
// @Summary Close a reconciliation
// @Tags reconciliations
// @Accept json
// @Produce json
// @Param id path string true "Reconciliation ID"
// @Param request body CloseRequest false "Close options"
// @Success 200 {object} common.Response{data=ReconciliationDTO} "Reconciliation closed"
// @Failure 409 {object} common.ProblemDetails "Pending items remain"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /reconciliations/{id}/close [post]
// @Security Bearer
func Close(svc *reconsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		id, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
		}
		var input CloseRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&input); err != nil {
				return common.ProblemDetailsJSON(c, "Invalid request body", nil, err.Error(), fiber.StatusBadRequest)
			}
		}
		rec, err := svc.Close(c.UserContext(), id, actor, input.Force)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Close failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Reconciliation closed", toReconciliationDTO(rec))
	}
}

type itemRef struct {
	actor  string
	recID  uuid.UUID
	itemID uuid.UUID
}

// itemRequest resolves the actor and both path IDs. It returns nil once the
// problem response has been written.
func itemRequest(c *fiber.Ctx) (*itemRef, error) {
	actor, err := middleware.Actor(c)
	if err != nil {
		return nil, common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
	}
	recID, err := pathID(c, "id")
	if err != nil {
		return nil, common.ProblemDetailsJSON(c, "Invalid reconciliation ID", err)
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		return nil, common.ProblemDetailsJSON(c, "Invalid item ID", err)
	}
	return &itemRef{actor: actor, recID: recID, itemID: itemID}, nil
}

func pathID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}
