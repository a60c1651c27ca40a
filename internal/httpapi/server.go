// Package httpapi exposes the task services over HTTP with fiber.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/notify"
	"github.com/gurkanbulca/taskassign/internal/service"
)

// Config wires the API to its services. Hub and LoginLimiter are optional.
type Config struct {
	Auth           *service.AuthService
	Tasks          *service.TaskService
	Users          *service.UserService
	Security       *service.SecurityService
	SecurityLogger *service.SecurityLogger
	Hub            *notify.Hub
	LoginLimiter   middleware.Limiter
	// Checks are run by GET /health, keyed by dependency name.
	Checks      map[string]func(context.Context) error
	CORSOrigins string
	// TrustedProxies lists peers allowed to set ProxyHeader. Empty ignores
	// forwarding headers.
	TrustedProxies []string
	ProxyHeader    string
	AccessLog      bool
	Logger         *slog.Logger
}

// New builds the fiber app with every route registered.
func New(cfg Config) *fiber.App {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	app := fiber.New(middleware.TrustedProxyConfig(fiber.Config{
		AppName:               "taskassign",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(log),
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	}, cfg.ProxyHeader, cfg.TrustedProxies))

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	origins := cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))
	app.Use(middleware.ClientInfo())

	h := &Handlers{
		auth:      cfg.Auth,
		tasks:     cfg.Tasks,
		users:     cfg.Users,
		security:  cfg.Security,
		validator: middleware.NewValidator(),
		checks:    cfg.Checks,
		now:       time.Now,
	}
	authn := cfg.Auth.Authenticator()

	app.Get("/health", h.Health)

	api := app.Group("/api")

	login := []fiber.Handler{}
	if cfg.LoginLimiter != nil {
		login = append(login, middleware.RateLimit(cfg.LoginLimiter, middleware.RateLimitOptions{
			OnLimit: func(c *fiber.Ctx, key string) {
				cfg.SecurityLogger.LogRateLimited(c.UserContext(), key, c.Path())
			},
		}))
	}
	api.Post("/register", h.Register)
	api.Post("/login", append(login, h.Login)...)
	api.Post("/refresh", h.Refresh)
	api.Post("/logout", h.Logout)

	requireAuth := authn.RequireAuth()
	api.Get("/me", requireAuth, h.Me)
	api.Get("/users", requireAuth, h.ListEmployees)
	api.Get("/security-events", requireAuth, middleware.RequireRole(models.RoleAdmin), h.ListSecurityEvents)

	api.Get("/tasks", requireAuth, h.ListTasks)
	api.Post("/tasks", requireAuth, h.CreateTask)
	api.Get("/tasks/stats", requireAuth, h.TaskStats)
	api.Get("/tasks/user/:userId", requireAuth, h.ListUserTasks)
	api.Get("/tasks/:taskId", requireAuth, h.GetTask)
	api.Patch("/tasks/:taskId/status", requireAuth, h.UpdateTaskStatus)
	api.Delete("/tasks/:taskId", requireAuth, h.DeleteTask)

	if cfg.Hub != nil {
		app.Use("/ws", upgradeWS(authn))
		app.Get("/ws", websocket.New(streamInvalidations(cfg.Hub, log)))
	}

	return app
}
