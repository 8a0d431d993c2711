// Package ledger exposes the transaction engine over HTTP.
package ledger

import (
	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/amirasaad/ledger/pkg/middleware"
	ledgersvc "github.com/amirasaad/ledger/pkg/service/ledger"
	"github.com/amirasaad/ledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader carries the caller's idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// Routes registers the ledger endpoints behind protect.
//
// Routes:
//   - POST /ledger/deposit                     : Credit an account from cash.
//   - POST /ledger/withdraw                    : Debit an account to cash.
//   - POST /ledger/transfer                    : Move money between two accounts.
//   - POST /ledger/transactions/:id/reverse    : Post the mirror image of a transaction.
//   - GET  /ledger/transactions/:id/verify     : Check the double-entry invariant.
//   - GET  /ledger/accounts/:id/entries        : Page through an account's journal.
//   - GET  /ledger/accounts/:id/balance        : Read the materialized balance.
func Routes(app *fiber.App, svc *ledgersvc.Service, protect fiber.Handler) {
	g := app.Group("/ledger", protect)
	g.Post("/deposit", Deposit(svc))
	g.Post("/withdraw", Withdraw(svc))
	g.Post("/transfer", Transfer(svc))
	g.Post("/transactions/:id/reverse", Reverse(svc))
	g.Get("/transactions/:id/verify", Verify(svc))
	g.Get("/accounts/:id/entries", Entries(svc))
	g.Get("/accounts/:id/balance", Balance(svc))
}

// Deposit returns a handler that credits an account from the cash account.
// @Summary Deposit funds
// @Description Credits the account and debits the cash account. Business rejections are recorded as FAILED transactions.
// @Tags ledger
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body DepositRequest true "Deposit funds details"
// @Success 201 {object} common.Response "Deposit completed"
// @Failure 409 {object} common.ProblemDetails "Idempotency key conflict or in flight"
// @Failure 422 {object} common.Response "Transaction FAILED"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/deposit [post]
// @Security Bearer
func Deposit(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[DepositRequest](c)
		if input == nil {
			return err
		}
		res, err := svc.Deposit(c.UserContext(), dto.DepositCommand{
			AccountID:      uuid.MustParse(input.AccountID),
			Amount:         input.Amount,
			Description:    input.Description,
			UserID:         actor,
			IdempotencyKey: c.Get(IdempotencyKeyHeader),
		})
		return respond(c, "Deposit", res, err)
	}
}

// Withdraw returns a handler that debits an account to the cash account.
// @Summary Withdraw funds
// @Description Debits the account and credits the cash account. A withdrawal that would overdraw the account is FAILED.
// @Tags ledger
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body WithdrawRequest true "Withdraw funds details"
// @Success 201 {object} common.Response "Withdrawal completed"
// @Failure 409 {object} common.ProblemDetails "Idempotency key conflict or in flight"
// @Failure 422 {object} common.Response "Transaction FAILED"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/withdraw [post]
// @Security Bearer
func Withdraw(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[WithdrawRequest](c)
		if input == nil {
			return err
		}
		res, err := svc.Withdraw(c.UserContext(), dto.WithdrawCommand{
			AccountID:      uuid.MustParse(input.AccountID),
			Amount:         input.Amount,
			Description:    input.Description,
			UserID:         actor,
			IdempotencyKey: c.Get(IdempotencyKeyHeader),
		})
		return respond(c, "Withdrawal", res, err)
	}
}

// Transfer returns a handler that moves money between two accounts.
// @Summary Transfer funds
// @Description Moves money between two customer accounts in one balanced transaction.
// @Tags ledger
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body TransferRequest true "Transfer funds details"
// @Success 201 {object} common.Response "Transfer completed"
// @Failure 409 {object} common.ProblemDetails "Idempotency key conflict or in flight"
// @Failure 422 {object} common.Response "Transaction FAILED"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/transfer [post]
// @Security Bearer
func Transfer(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		input, err := common.BindAndValidate[TransferRequest](c)
		if input == nil {
			return err
		}
		res, err := svc.Transfer(c.UserContext(), dto.TransferCommand{
			FromAccountID:  uuid.MustParse(input.FromAccountID),
			ToAccountID:    uuid.MustParse(input.ToAccountID),
			Amount:         input.Amount,
			Description:    input.Description,
			UserID:         actor,
			IdempotencyKey: c.Get(IdempotencyKeyHeader),
		})
		return respond(c, "Transfer", res, err)
	}
}

// Reverse returns a handler that reverses a completed transaction.
// @Summary Reverse a transaction
// @Description Posts the mirror image of a completed transaction. A transaction can be reversed once.
// @Tags ledger
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body ReverseRequest true "Reversal reason"
// @Success 201 {object} common.Response "Reversal completed"
// @Failure 404 {object} common.ProblemDetails "Transaction not found"
// @Failure 422 {object} common.ProblemDetails "Already reversed"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/transactions/{id}/reverse [post]
// @Security Bearer
func Reverse(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := middleware.Actor(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, err.Error(), fiber.StatusUnauthorized)
		}
		txID, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid transaction ID", err)
		}
		input, err := common.BindAndValidate[ReverseRequest](c)
		if input == nil {
			return err
		}
		res, err := svc.Reverse(c.UserContext(), dto.ReverseCommand{
			TransactionID:  txID,
			Reason:         input.Reason,
			UserID:         actor,
			IdempotencyKey: c.Get(IdempotencyKeyHeader),
		})
		return respond(c, "Reversal", res, err)
	}
}

// Verify returns a handler that reports whether a transaction balances.
// @Summary Verify a transaction
// @Tags ledger
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} common.Response "Double-entry report"
// @Failure 404 {object} common.ProblemDetails "Transaction not found"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/transactions/{id}/verify [get]
// @Security Bearer
func Verify(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		txID, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid transaction ID", err)
		}
		report, err := svc.VerifyDoubleEntry(c.UserContext(), txID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to verify transaction", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Double-entry report", report)
	}
}

// Entries returns a handler that pages through an account's journal.
// The page size comes from ?limit and the position from ?cursor.
// @Summary List ledger entries
// @Description Entries are ordered oldest first. Pass next_cursor back as cursor to resume.
// @Tags ledger
// @Produce json
// @Param id path string true "Account ID"
// @Param limit query int false "Page size (max 500)"
// @Param cursor query string false "Opaque cursor"
// @Success 200 {object} common.Response{data=EntryPageDTO} "Ledger entries"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/accounts/{id}/entries [get]
// @Security Bearer
func Entries(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		page, err := svc.GetLedgerEntries(c.UserContext(), dto.EntryQuery{
			AccountID: accountID,
			Limit:     c.QueryInt("limit", 0),
			Cursor:    c.Query("cursor"),
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list entries", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Ledger entries", toEntryPageDTO(page))
	}
}

// Balance returns a handler that reads an account's materialized balance.
// @Summary Get account balance
// @Tags ledger
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response{data=BalanceDTO} "Balance"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 429 {object} common.ProblemDetails "Too many requests"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /ledger/accounts/{id}/balance [get]
// @Security Bearer
func Balance(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accountID, err := pathID(c, "id")
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid account ID", err)
		}
		b, err := svc.GetBalance(c.UserContext(), accountID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to fetch balance", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balance", toBalanceDTO(b))
	}
}

// respond writes a movement's result. A FAILED result is a business outcome,
// reported as 422 with the result as data.
func respond(c *fiber.Ctx, op string, res *dto.Result, err error) error {
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindInvariant {
			log.Errorf("%s failed: %v", op, err)
		}
		return common.ProblemDetailsJSON(c, op+" failed", err)
	}
	if res.Failed() {
		return common.SuccessResponseJSON(c, fiber.StatusUnprocessableEntity, res.Message, res)
	}
	return common.SuccessResponseJSON(c, fiber.StatusCreated, op+" completed", res)
}

func pathID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, domain.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}
