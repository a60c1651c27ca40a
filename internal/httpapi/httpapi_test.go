package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskassign/internal/cache"
	"github.com/gurkanbulca/taskassign/internal/config"
	"github.com/gurkanbulca/taskassign/internal/database"
	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/notify"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/internal/service"
	"github.com/gurkanbulca/taskassign/pkg/auth"
	"github.com/gurkanbulca/taskassign/pkg/email"
	"github.com/gurkanbulca/taskassign/pkg/security"
)

type testEnv struct {
	t      *testing.T
	app    *fiber.App
	auth   *service.AuthService
	events *repository.SecurityEventRepository
	mailer *email.MockEmailService
}

func newTestEnv(t *testing.T, configure ...func(*Config)) *testEnv {
	db := database.NewTestDB(t)
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	events := repository.NewSecurityEventRepository(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	securitySvc := service.NewSecurityService(events)
	securityLogger := service.NewSecurityLogger(securitySvc, logger)
	authSvc := service.NewAuthService(
		users,
		auth.NewTokenManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour),
		auth.NewPasswordManager(auth.WithCost(4)),
		securityLogger,
		config.SecurityConfig{
			MaxLoginAttempts:       5,
			AccountLockoutDuration: 15 * time.Minute,
			PasswordMinLength:      6,
			BcryptCost:             4,
			AllowAdminRegistration: true,
		},
		logger,
	)
	engine := policy.NewEngine(policy.DefaultPolicy())
	mailer := email.NewMockEmailService()

	cfg := Config{
		Auth:           authSvc,
		Tasks:          service.NewTaskService(tasks, users, engine, cache.NewMemoryCache(time.Minute), nil, mailer, securityLogger, logger),
		Users:          service.NewUserService(users, engine, securityLogger),
		Security:       securitySvc,
		SecurityLogger: securityLogger,
		Checks: map[string]func(context.Context) error{
			"database": db.PingContext,
		},
		Logger: logger,
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	return &testEnv{t: t, app: New(cfg), auth: authSvc, events: events, mailer: mailer}
}

func (e *testEnv) do(method, path, token string, body interface{}) (int, []byte) {
	e.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	return resp.StatusCode, data
}

func (e *testEnv) register(addr string, role models.Role) *models.User {
	e.t.Helper()
	u, err := e.auth.Register(context.Background(), service.RegisterInput{
		Email:    addr,
		Password: "secret1",
		Role:     string(role),
	})
	require.NoError(e.t, err)
	return u
}

func (e *testEnv) login(addr string) string {
	e.t.Helper()
	status, body := e.do(http.MethodPost, "/api/login", "", fiber.Map{"email": addr, "password": "secret1"})
	require.Equal(e.t, http.StatusOK, status, string(body))

	var tokens tokenResponse
	decode(e.t, body, &tokens)
	return tokens.AccessToken
}

func decode(t *testing.T, data []byte, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, dst), string(data))
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var e ErrorResponse
	decode(t, data, &e)
	return e.Error
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"database":"ok"`)

	failing := newTestEnv(t, func(c *Config) {
		c.Checks["cache"] = func(context.Context) error { return errors.New("connection refused") }
	})
	status, body = failing.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "connection refused")
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(http.MethodPost, "/api/register", "", fiber.Map{
		"email":    "Jane@Example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var user models.User
	decode(t, body, &user)
	assert.Equal(t, "jane@example.com", user.Email)
	assert.Equal(t, models.RoleEmployee, user.Role)
	assert.NotContains(t, string(body), "password")

	status, body = env.do(http.MethodPost, "/api/register", "", fiber.Map{"email": "jane@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "email_taken", errorCode(t, body))

	status, body = env.do(http.MethodPost, "/api/login", "", fiber.Map{"email": "jane@example.com", "password": "wrong!!"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "unauthorized", errorCode(t, body))

	status, body = env.do(http.MethodPost, "/api/login", "", fiber.Map{"email": "jane@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)
	var tokens tokenResponse
	decode(t, body, &tokens)
	assert.Equal(t, "Bearer", tokens.TokenType)

	status, body = env.do(http.MethodGet, "/api/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &user)
	assert.Equal(t, "jane@example.com", user.Email)

	status, body = env.do(http.MethodPost, "/api/refresh", "", fiber.Map{"refreshToken": tokens.RefreshToken})
	require.Equal(t, http.StatusOK, status, string(body))
	var rotated tokenResponse
	decode(t, body, &rotated)

	status, _ = env.do(http.MethodPost, "/api/refresh", "", fiber.Map{"refreshToken": tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(http.MethodPost, "/api/logout", "", fiber.Map{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(http.MethodPost, "/api/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(http.MethodPost, "/api/register", "", fiber.Map{"email": "nope", "password": "secret1", "role": "manager"})
	assert.Equal(t, http.StatusBadRequest, status)

	var resp ErrorResponse
	decode(t, body, &resp)
	assert.Equal(t, "validation_failed", resp.Error)
	fields := map[string]string{}
	for _, f := range resp.Fields {
		fields[f.Field] = f.Rule
	}
	assert.Equal(t, map[string]string{"email": "email", "role": "role"}, fields)

	status, body = env.do(http.MethodPost, "/api/register", "", fiber.Map{"email": "a@example.com", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "weak_password", errorCode(t, body))
}

func TestUnauthenticated(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "garbage"} {
		status, body := env.do(http.MethodGet, "/api/tasks/stats", token, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, "unauthorized", errorCode(t, body))
	}
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register("admin@example.com", models.RoleAdmin)
	emp := env.register("emp@example.com", models.RoleEmployee)
	env.register("other@example.com", models.RoleEmployee)

	adminToken := env.login("admin@example.com")
	empToken := env.login("emp@example.com")
	otherToken := env.login("other@example.com")

	status, body := env.do(http.MethodPost, "/api/tasks", adminToken, fiber.Map{
		"title":      "Quarterly report",
		"assignedTo": emp.ID,
		"status":     "completed",
		"priority":   "high",
		"category":   "Reporting",
		"dueDate":    "2030-03-31",
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	var task models.Task
	decode(t, body, &task)
	assert.Equal(t, models.StatusNew, task.Status)
	assert.Len(t, env.mailer.GetSentEmails(), 1)

	status, _ = env.do(http.MethodGet, "/api/tasks", empToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.do(http.MethodGet, "/api/tasks", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var list service.TaskList
	decode(t, body, &list)
	assert.Equal(t, 1, list.Total)

	status, body = env.do(http.MethodGet, "/api/tasks/user/"+emp.ID, empToken, nil)
	require.Equal(t, http.StatusOK, status)
	decode(t, body, &list)
	assert.Equal(t, 1, list.Total)

	status, _ = env.do(http.MethodGet, "/api/tasks/user/"+emp.ID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = env.do(http.MethodGet, "/api/tasks/"+task.ID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	path := "/api/tasks/" + task.ID + "/status"
	status, body = env.do(http.MethodPatch, path, empToken, fiber.Map{"status": "In Progress"})
	require.Equal(t, http.StatusOK, status, string(body))
	decode(t, body, &task)
	assert.Equal(t, models.StatusInProgress, task.Status)
	assert.Equal(t, 2, task.Version)

	status, body = env.do(http.MethodPatch, path, empToken, fiber.Map{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_status", errorCode(t, body))

	status, body = env.do(http.MethodPatch, path, empToken, fiber.Map{"status": "completed", "version": 1})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", errorCode(t, body))

	status, _ = env.do(http.MethodPatch, path, otherToken, fiber.Map{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(http.MethodPatch, path, empToken, fiber.Map{"status": "completed", "version": 2})
	require.Equal(t, http.StatusOK, status)

	status, body = env.do(http.MethodPatch, path, empToken, fiber.Map{"status": "pending"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "terminal_state", errorCode(t, body))

	status, body = env.do(http.MethodGet, "/api/tasks/stats", empToken, nil)
	require.Equal(t, http.StatusOK, status)
	var stats statsResponse
	decode(t, body, &stats)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Stats[models.StatusCompleted])

	status, _ = env.do(http.MethodDelete, "/api/tasks/"+task.ID, empToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(http.MethodDelete, "/api/tasks/"+task.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = env.do(http.MethodGet, "/api/tasks/"+task.ID, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", errorCode(t, body))

	status, body = env.do(http.MethodGet, "/api/tasks/not-a-uuid", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_id", errorCode(t, body))

}

func TestCreateTask_Rejects(t *testing.T) {
	env := newTestEnv(t)
	admin := env.register("admin@example.com", models.RoleAdmin)
	env.register("emp@example.com", models.RoleEmployee)
	adminToken := env.login("admin@example.com")

	status, body := env.do(http.MethodPost, "/api/tasks", adminToken, fiber.Map{
		"title":      "Self-assigned",
		"assignedTo": admin.ID,
		"category":   "Ops",
		"dueDate":    "2030-01-01",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_assignee", errorCode(t, body))

	status, body = env.do(http.MethodPost, "/api/tasks", adminToken, fiber.Map{
		"title":      "No date",
		"assignedTo": admin.ID,
		"category":   "Ops",
		"dueDate":    "next tuesday",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	var resp ErrorResponse
	decode(t, body, &resp)
	assert.Equal(t, "validation_failed", resp.Error)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "dueDate", resp.Fields[0].Field)
}

func TestEmployeesAndSecurityEvents(t *testing.T) {
	env := newTestEnv(t)
	env.register("admin@example.com", models.RoleAdmin)
	env.register("emp@example.com", models.RoleEmployee)
	adminToken := env.login("admin@example.com")
	empToken := env.login("emp@example.com")

	status, body := env.do(http.MethodGet, "/api/users", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var users usersResponse
	decode(t, body, &users)
	require.Len(t, users.Users, 1)
	assert.Equal(t, "emp@example.com", users.Users[0].Email)

	status, _ = env.do(http.MethodGet, "/api/users", empToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(http.MethodGet, "/api/security-events", empToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = env.do(http.MethodGet, "/api/security-events?type=login_success", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var events service.GetSecurityEventsResponse
	decode(t, body, &events)
	assert.Equal(t, 2, events.TotalCount)

	status, body = env.do(http.MethodGet, "/api/security-events?from=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_input", errorCode(t, body))
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.LoginLimiter = middleware.NewLocalLimiter(middleware.RateLimitConfig{Requests: 2, Window: time.Minute})
	})

	creds := fiber.Map{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		status, _ := env.do(http.MethodPost, "/api/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, status)
	}

	status, body := env.do(http.MethodPost, "/api/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limited", errorCode(t, body))

	limited, _, err := env.events.List(context.Background(), repository.EventFilter{EventType: string(security.EventTypeRateLimited)})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	// other endpoints are not limited
	status, _ = env.do(http.MethodPost, "/api/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, status)
}

func TestWebSocket_RequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Hub = notifyHub(t)
	})

	status, body := env.do(http.MethodGet, "/ws?token=abc", "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)
	assert.Equal(t, "upgrade_required", errorCode(t, body))
}

func notifyHub(t *testing.T) *notify.Hub {
	hub := notify.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		hub.Wait()
	})
	return hub
}
