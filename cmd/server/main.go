// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gurkanbulca/taskassign/internal/cache"
	"github.com/gurkanbulca/taskassign/internal/config"
	"github.com/gurkanbulca/taskassign/internal/database"
	"github.com/gurkanbulca/taskassign/internal/health"
	"github.com/gurkanbulca/taskassign/internal/httpapi"
	"github.com/gurkanbulca/taskassign/internal/jobs"
	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/notify"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/internal/service"
	"github.com/gurkanbulca/taskassign/pkg/auth"
	"github.com/gurkanbulca/taskassign/pkg/email"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file found")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	if cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	logger.Info("connecting to database", "driver", cfg.Database.Driver)
	db, err := database.Open(ctx, database.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.ConnectionString(),
		MaxOpenConns: 25,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	if cfg.Server.AutoMigrate {
		logger.Info("running auto migration")
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("auto migration: %w", err)
		}
	}

	store, limiter, redisClient := newCacheAndLimiter(ctx, cfg, logger)

	// Repositories
	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	events := repository.NewSecurityEventRepository(db)

	// Services
	enginePolicy, err := cfg.Policy.Engine()
	if err != nil {
		return err
	}
	engine := policy.NewEngine(enginePolicy)
	logger.Info("policy loaded",
		"enforce_terminal", enginePolicy.EnforceTerminal,
		"employee_statuses", cfg.Policy.EmployeeStatusList(),
	)

	tokenManager := auth.NewTokenManager(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenDuration,
		cfg.JWT.RefreshTokenDuration,
	)
	passwordManager := auth.NewPasswordManager(
		auth.WithMinLength(cfg.Security.PasswordMinLength),
		auth.WithCost(cfg.Security.BcryptCost),
	)

	var mailer email.EmailService
	if cfg.Email.TestingMode || cfg.IsDevelopment() {
		logger.Info("using mock email service")
		mailer = email.NewMockEmailService()
	} else {
		logger.Info("using SMTP email service", "host", cfg.Email.SMTPHost)
		mailer = email.NewSMTPEmailService(cfg.ToEmailConfig())
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	hub := notify.NewHub(logger)
	go hub.Run(hubCtx)

	securityService := service.NewSecurityService(events)
	securityLogger := service.NewSecurityLogger(securityService, logger)
	authService := service.NewAuthService(users, tokenManager, passwordManager, securityLogger, cfg.Security, logger)
	taskService := service.NewTaskService(tasks, users, engine, store, hub, mailer, securityLogger, logger)
	userService := service.NewUserService(users, engine, securityLogger)

	checks := map[string]func(context.Context) error{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["cache"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := httpapi.New(httpapi.Config{
		Auth:           authService,
		Tasks:          taskService,
		Users:          userService,
		Security:       securityService,
		SecurityLogger: securityLogger,
		Hub:            hub,
		LoginLimiter:   limiter,
		Checks:         checks,
		CORSOrigins:    cfg.Server.CORSAllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		ProxyHeader:    cfg.Server.ProxyHeader,
		AccessLog:      true,
		Logger:         logger,
	})

	// gRPC health
	healthServer := health.NewServer(logger)
	for name, check := range checks {
		healthServer.AddCheck("taskassign."+name, check)
	}
	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer, cfg.Server.EnableReflection || cfg.IsDevelopment())

	listener, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	healthCtx, stopHealth := context.WithCancel(ctx)
	go healthServer.Run(healthCtx, cfg.Jobs.HealthCheckInterval)

	// Background jobs
	scheduler := jobs.NewScheduler(logger)
	if _, err := scheduler.Add(jobs.TokenCleanupJob(cfg.Jobs.TokenCleanupSchedule, authService)); err != nil {
		return err
	}
	if _, err := scheduler.Add(jobs.EventPruneJob(cfg.Jobs.EventPruneSchedule, cfg.Jobs.EventRetention, securityService)); err != nil {
		return err
	}
	scheduler.Start()

	go func() {
		logger.Info("gRPC health server listening", "port", cfg.Server.GRPCPort)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server stopped", "error", err)
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := app.Listen(":" + cfg.Server.HTTPPort); err != nil {
			logger.Error("HTTP server stopped", "error", err)
		}
	}()

	// Operations run concurrently, so the ordered teardown is a single one:
	// stop accepting work first, close storage last.
	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, map[string]gfshutdown.Operation{
		"taskassign": func(ctx context.Context) error {
			var errs []error
			errs = append(errs, app.ShutdownWithContext(ctx))
			stopHealth()
			grpcServer.GracefulStop()
			errs = append(errs, scheduler.Stop(ctx))
			stopHub()
			hub.Wait()
			if redisClient != nil {
				errs = append(errs, redisClient.Close())
			}
			errs = append(errs, db.Close())
			return errors.Join(errs...)
		},
	})

	code := <-wait
	logger.Info("server exited", "code", code)
	if code != 0 {
		return fmt.Errorf("shutdown finished with code %d", code)
	}
	return nil
}

// newCacheAndLimiter prefers Redis and falls back to in-process
// implementations when it is disabled or unreachable.
func newCacheAndLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, middleware.Limiter, *redis.Client) {
	limits := middleware.RateLimitConfig{
		Requests: cfg.Security.LoginRateLimit,
		Window:   cfg.Security.LoginRateWindow,
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.Info("using redis cache", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
			return cache.NewRedisCache(client, "taskassign:", cfg.Redis.CacheTTL),
				middleware.NewSlidingWindowLimiter(client, limits, "taskassign:ratelimit:login:"),
				client
		}
		logger.Warn("redis unavailable, using in-memory cache", "addr", cfg.Redis.Addr, "error", err)
		_ = client.Close()
	}

	return cache.NewMemoryCache(cfg.Redis.CacheTTL), middleware.NewLocalLimiter(limits), nil
}
