// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/pkg/email"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Security SecurityConfig
	Redis    RedisConfig
	Policy   PolicyConfig
	Email    EmailConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	GRPCPort           string
	HTTPPort           string
	Environment        string
	CORSAllowedOrigins string
	AutoMigrate        bool
	EnableReflection   bool
	// BaseURL is where the web client lives; used for links in emails.
	BaseURL string
	// TrustedProxies are peers whose ProxyHeader is believed. Empty means the
	// socket address is always used.
	TrustedProxies []string
	ProxyHeader    string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// DSN overrides the individual fields when set.
	DSN string
}

type JWTConfig struct {
	AccessSecret         string
	RefreshSecret        string
	AccessTokenDuration  time.Duration
	RefreshTokenDuration time.Duration
}

type SecurityConfig struct {
	MaxLoginAttempts       int
	AccountLockoutDuration time.Duration
	PasswordMinLength      int
	BcryptCost             int
	AllowAdminRegistration bool
	LoginRateLimit         int
	LoginRateWindow        time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
	Enabled  bool
}

type PolicyConfig struct {
	EnforceTerminal  bool
	EmployeeStatuses string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
	FromName     string
	TestingMode  bool
}

type JobsConfig struct {
	TokenCleanupSchedule string
	EventPruneSchedule   string
	EventRetention       time.Duration
	HealthCheckInterval  time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			GRPCPort:           getEnv("GRPC_PORT", "50051"),
			HTTPPort:           getEnv("HTTP_PORT", "5000"),
			Environment:        getEnv("ENVIRONMENT", "development"),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AutoMigrate:        getEnvAsBool("AUTO_MIGRATE", true),
			EnableReflection:   getEnvAsBool("GRPC_REFLECTION", false),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			TrustedProxies:     getEnvAsList("TRUSTED_PROXIES"),
			ProxyHeader:        getEnv("PROXY_HEADER", "X-Forwarded-For"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "taskassign"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			DSN:      getEnv("DATABASE_URL", ""),
		},
		JWT: JWTConfig{
			AccessSecret:         getEnv("JWT_ACCESS_SECRET", getEnv("JWT_SECRET", "dev-access-secret-change-in-production")),
			RefreshSecret:        getEnv("JWT_REFRESH_SECRET", getEnv("JWT_SECRET", "dev-refresh-secret-change-in-production")),
			AccessTokenDuration:  getEnvAsDuration("JWT_ACCESS_TOKEN_DURATION", time.Hour),
			RefreshTokenDuration: getEnvAsDuration("JWT_REFRESH_TOKEN_DURATION", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:       getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			AccountLockoutDuration: getEnvAsDuration("ACCOUNT_LOCKOUT_DURATION", 15*time.Minute),
			PasswordMinLength:      getEnvAsInt("PASSWORD_MIN_LENGTH", 6),
			BcryptCost:             getEnvAsInt("BCRYPT_COST", 10),
			AllowAdminRegistration: getEnvAsBool("ALLOW_ADMIN_REGISTRATION", true),
			LoginRateLimit:         getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			LoginRateWindow:        getEnvAsDuration("LOGIN_RATE_WINDOW", time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
			Enabled:  getEnvAsBool("CACHE_ENABLED", true),
		},
		Policy: PolicyConfig{
			EnforceTerminal:  getEnvAsBool("POLICY_ENFORCE_TERMINAL", true),
			EmployeeStatuses: getEnv("POLICY_EMPLOYEE_STATUSES", ""),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("EMAIL_FROM", "noreply@taskassign.local"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Task Assign"),
			TestingMode:  getEnvAsBool("EMAIL_TESTING_MODE", true),
		},
		Jobs: JobsConfig{
			TokenCleanupSchedule: getEnv("TOKEN_CLEANUP_SCHEDULE", "@every 1h"),
			EventPruneSchedule:   getEnv("EVENT_PRUNE_SCHEDULE", "@daily"),
			EventRetention:       getEnvAsDuration("SECURITY_EVENT_RETENTION", 90*24*time.Hour),
			HealthCheckInterval:  getEnvAsDuration("HEALTH_CHECK_INTERVAL", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		return errors.New("jwt secrets must not be empty")
	}
	if c.IsProduction() && strings.HasPrefix(c.JWT.AccessSecret, "dev-") {
		return errors.New("JWT_ACCESS_SECRET must be set in production")
	}
	if c.JWT.AccessTokenDuration <= 0 || c.JWT.RefreshTokenDuration <= 0 {
		return errors.New("token durations must be positive")
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.Security.PasswordMinLength <= 0 {
		return errors.New("PASSWORD_MIN_LENGTH must be positive")
	}
	if c.Security.LoginRateLimit <= 0 || c.Security.LoginRateWindow <= 0 {
		return errors.New("login rate limit and window must be positive")
	}
	if c.Jobs.EventRetention <= 0 || c.Jobs.HealthCheckInterval <= 0 {
		return errors.New("job intervals must be positive")
	}
	if _, err := c.Policy.Engine(); err != nil {
		return fmt.Errorf("POLICY_EMPLOYEE_STATUSES: %w", err)
	}
	return nil
}

// Engine converts the policy settings into an engine policy.
func (p PolicyConfig) Engine() (policy.Policy, error) {
	statuses, err := policy.ParseStatusList(p.EmployeeStatuses)
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.Policy{
		EnforceTerminal:  p.EnforceTerminal,
		EmployeeStatuses: statuses,
	}, nil
}

// EmployeeStatusList is a convenience for logging.
func (p PolicyConfig) EmployeeStatusList() []models.Status {
	statuses, _ := policy.ParseStatusList(p.EmployeeStatuses)
	return statuses
}

// ToEmailConfig adapts the email settings for pkg/email.
func (c *Config) ToEmailConfig() *email.Config {
	return &email.Config{
		SMTPHost:     c.Email.SMTPHost,
		SMTPPort:     c.Email.SMTPPort,
		SMTPUsername: c.Email.SMTPUsername,
		SMTPPassword: c.Email.SMTPPassword,
		FromEmail:    c.Email.FromAddress,
		FromName:     c.Email.FromName,
		BaseURL:      c.Server.BaseURL,
		AppName:      c.Email.FromName,
		SupportEmail: c.Email.FromAddress,
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ConnectionString returns the DSN for the configured driver.
func (d DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver == "sqlite3" {
		return fmt.Sprintf("file:%s.db?_fk=1", d.DBName)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	// Try parsing as duration string (e.g., "15m", "24h")
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}

	return defaultValue
}
