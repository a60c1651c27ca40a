// internal/httpapi/handlers.go
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/service"
)

// Handlers serves the REST API on top of the services.
type Handlers struct {
	auth      *service.AuthService
	tasks     *service.TaskService
	users     *service.UserService
	security  *service.SecurityService
	validator *middleware.Validator
	checks    map[string]func(context.Context) error
	now       func() time.Time
}

// session returns the caller's session, rejecting one that expired while the
// request was in flight.
func (h *Handlers) session(c *fiber.Ctx) (middleware.Session, error) {
	s, ok := middleware.CurrentSession(c)
	if !ok || s.Expired(h.now()) {
		return middleware.Session{}, policy.ErrInvalidCredential
	}
	return s, nil
}

func (h *Handlers) requester(c *fiber.Ctx) (policy.Requester, error) {
	s, err := h.session(c)
	if err != nil {
		return policy.Requester{}, err
	}
	return s.Requester(), nil
}

func idParam(c *fiber.Ctx, name string) (string, error) {
	id := c.Params(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", errInvalidID, name)
	}
	return id, nil
}

// Health reports every registered dependency check.
func (h *Handlers) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(fiber.Map, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "unhealthy"
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"status": status, "checks": checks})
}

func (h *Handlers) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := h.validator.BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *Handlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := h.validator.BindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(newTokenResponse(res))
}

func (h *Handlers) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := h.validator.BindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(newTokenResponse(res))
}

// Logout always succeeds; an unknown or missing token is already logged out.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	_ = c.BodyParser(&req)

	if err := h.auth.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) Me(c *fiber.Ctx) error {
	s, err := h.session(c)
	if err != nil {
		return err
	}
	user, err := h.auth.Me(c.UserContext(), s.UserID)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (h *Handlers) ListEmployees(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}
	users, err := h.users.ListEmployees(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(usersResponse{Users: users})
}

func (h *Handlers) ListSecurityEvents(c *fiber.Ctx) error {
	req, err := h.requester(c)
	if err != nil {
		return err
	}

	q := &service.GetSecurityEventsRequest{
		UserID:    c.Query("userId"),
		EventType: c.Query("type"),
		Severity:  c.Query("severity"),
		Limit:     c.QueryInt("limit"),
		Offset:    c.QueryInt("offset"),
	}
	for param, dst := range map[string]*time.Time{"from": &q.FromDate, "to": &q.ToDate} {
		v := c.Query(param)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("%w: %s must be an RFC 3339 time", service.ErrInvalidInput, param)
		}
		*dst = t
	}

	res, err := h.security.GetSecurityEvents(c.UserContext(), req, q)
	if err != nil {
		return err
	}
	return c.JSON(res)
}
