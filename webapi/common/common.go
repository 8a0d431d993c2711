// Package common holds the response envelopes, problem details and request
// helpers shared by the HTTP routes.
package common

import (
	"errors"
	"strings"
	"time"

	"github.com/amirasaad/ledger/pkg/domain"
	"github.com/amirasaad/ledger/pkg/dto"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Response defines the standard API response structure for success cases.
type Response struct {
	Status  int    `json:"status"`         // HTTP status code
	Message string `json:"message"`        // Human-readable explanation
	Data    any    `json:"data,omitempty"` // Response data
}

// ProblemDetails follows RFC 9457 Problem Details for HTTP APIs.
type ProblemDetails struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Errors   any    `json:"errors,omitempty"`
}

// FieldError is one entry of ProblemDetails.Errors for validation failures.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validate = dto.NewValidator()

// SuccessResponseJSON writes a Response envelope.
func SuccessResponseJSON(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(Response{Status: status, Message: message, Data: data})
}

// ProblemDetailsJSON writes an RFC 9457 problem. The status is derived from
// err unless given as the last optional argument. detail may be a string or
// any JSON-encodable value, which is reported under errors.
//
// Internal errors never expose their message.
func ProblemDetailsJSON(c *fiber.Ctx, title string, err error, opts ...any) error {
	status := fiber.StatusInternalServerError
	if err != nil {
		status = ErrorToStatusCode(err)
	}
	pd := ProblemDetails{Type: "about:blank", Title: title, Instance: c.OriginalURL()}

	var detail any
	for _, o := range opts {
		switch v := o.(type) {
		case int:
			status = v
		default:
			detail = v
		}
	}
	switch v := detail.(type) {
	case nil:
		if err != nil {
			pd.Detail = errorDetail(err, status)
			pd.Errors = fieldErrors(err)
		}
	case string:
		pd.Detail = v
	default:
		pd.Errors = v
	}
	pd.Status = status

	return c.Status(status).JSON(pd, "application/problem+json")
}

func errorDetail(err error, status int) string {
	if status >= fiber.StatusInternalServerError {
		return domain.ErrInternal.Error()
	}
	return err.Error()
}

func fieldErrors(err error) []FieldError {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Field == "" {
		return nil
	}
	return []FieldError{{Field: ve.Field, Message: ve.Message}}
}

// ErrorToStatusCode maps an error's domain kind to an HTTP status code.
func ErrorToStatusCode(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return fiber.StatusBadRequest
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindBusiness:
		return fiber.StatusUnprocessableEntity
	case domain.KindTransient, domain.KindConflict, domain.KindState:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// BindAndValidate parses the request body and validates it using go-playground/validator.
// Returns a pointer to the struct (populated), or writes an error response and returns nil.
func BindAndValidate[T any](c *fiber.Ctx) (*T, error) {
	var input T
	if err := c.BodyParser(&input); err != nil {
		return nil, ProblemDetailsJSON(c, "Invalid request body", nil, err.Error(), fiber.StatusBadRequest)
	}
	if err := validate.Struct(input); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			out := make([]FieldError, 0, len(errs))
			for _, fe := range errs {
				out = append(out, FieldError{Field: fe.Field(), Message: fe.Tag()})
			}
			return nil, ProblemDetailsJSON(c, "Validation failed", nil, out, fiber.StatusBadRequest)
		}
		return nil, ProblemDetailsJSON(c, "Validation failed", nil, err.Error(), fiber.StatusBadRequest)
	}
	return &input, nil
}

// ErrorHandler is the fiber fallback for errors no handler wrote.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return ProblemDetailsJSON(c, "Internal Server Error", err)
}

// ClientKey identifies the caller for rate limiting. It prefers the first
// X-Forwarded-For hop, then X-Real-IP, then the socket address.
func ClientKey(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
			return strings.TrimSpace(forwardedFor[:commaIndex])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}

// NewApp returns a fiber app with the shared error handler, rate limiting
// and panic recovery installed. max <= 0 disables rate limiting.
func NewApp(max int, window time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	if max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:          max,
			Expiration:   window,
			KeyGenerator: ClientKey,
			LimitReached: func(c *fiber.Ctx) error {
				return ProblemDetailsJSON(
					c,
					"Too Many Requests",
					errors.New("rate limit exceeded"),
					"rate limit exceeded",
					fiber.StatusTooManyRequests,
				)
			},
		}))
	}
	app.Use(recover.New())
	return app
}
