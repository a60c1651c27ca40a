// internal/httpapi/errors.go
package httpapi

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/service"
)

var errInvalidID = errors.New("malformed id")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Fields  []middleware.FieldError `json:"fields,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Order matters: ErrTerminalState also matches ErrAccessDenied.
var errorMappings = []errorMapping{
	{errInvalidID, fiber.StatusBadRequest, "invalid_id", ""},
	{policy.ErrInvalidCredential, fiber.StatusUnauthorized, "unauthorized", "invalid or missing credentials"},
	{policy.ErrTerminalState, fiber.StatusConflict, "terminal_state", ""},
	{policy.ErrAccessDenied, fiber.StatusForbidden, "forbidden", "access denied"},
	{policy.ErrNotFound, fiber.StatusNotFound, "not_found", ""},
	{policy.ErrInvalidStatus, fiber.StatusBadRequest, "invalid_status", ""},
	{policy.ErrInvalidAssignee, fiber.StatusBadRequest, "invalid_assignee", ""},
	{policy.ErrInvalidPriority, fiber.StatusBadRequest, "invalid_priority", ""},
	{service.ErrWeakPassword, fiber.StatusBadRequest, "weak_password", ""},
	{service.ErrInvalidInput, fiber.StatusBadRequest, "invalid_input", ""},
	{service.ErrEmailTaken, fiber.StatusConflict, "email_taken", ""},
	{service.ErrConflict, fiber.StatusConflict, "conflict", ""},
	{service.ErrAccountLocked, fiber.StatusLocked, "account_locked", ""},
}

// ErrorHandler renders handler errors as ErrorResponse. Unknown errors are
// logged and reported as a bare 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := classify(err)
		if status == fiber.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Method(),
				"path", c.Path(),
				"error", err,
			)
		}
		return c.Status(status).JSON(body)
	}
}

func classify(err error) (int, ErrorResponse) {
	var verr *middleware.ValidationError
	if errors.As(err, &verr) {
		return fiber.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: verr.Message,
			Fields:  verr.Fields,
		}
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}
			return m.status, ErrorResponse{Error: m.code, Message: msg}
		}
	}

	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code, ErrorResponse{Error: statusCode(ferr.Code), Message: ferr.Message}
	}

	return fiber.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "internal server error",
	}
}

func statusCode(status int) string {
	return strings.ReplaceAll(strings.ToLower(utils.StatusMessage(status)), " ", "_")
}
