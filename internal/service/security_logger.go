// internal/service/security_logger.go
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/pkg/security"
)

// SecurityLogger provides convenience methods for logging security events.
// Failures to persist an event are logged and never fail the caller.
type SecurityLogger struct {
	securityService *SecurityService
	logger          *slog.Logger
}

func NewSecurityLogger(securityService *SecurityService, logger *slog.Logger) *SecurityLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityLogger{securityService: securityService, logger: logger}
}

// LogFromContext logs a security event using context information
func (sl *SecurityLogger) LogFromContext(ctx context.Context, userID string, eventType security.EventType, description string) error {
	clientInfo := middleware.GetClientInfoFromContext(ctx)

	return sl.securityService.LogUserSecurityEvent(
		ctx,
		userID,
		string(eventType),
		description,
		"",
		clientInfo.IPAddress,
		clientInfo.UserAgent,
	)
}

// LogCurrentUserFromContext attributes the event to the session user, if any.
func (sl *SecurityLogger) LogCurrentUserFromContext(ctx context.Context, eventType security.EventType, description string) error {
	userID, _ := middleware.GetUserIDFromContext(ctx)
	return sl.LogFromContext(ctx, userID, eventType, description)
}

func (sl *SecurityLogger) record(ctx context.Context, userID string, eventType security.EventType, description string) {
	if sl == nil {
		return
	}
	if err := sl.LogFromContext(ctx, userID, eventType, description); err != nil {
		sl.logger.Warn("failed to record security event", "type", eventType, "error", err)
	}
}

// Convenience methods for common security events

func (sl *SecurityLogger) LogRegistration(ctx context.Context, userID, role string) {
	sl.record(ctx, userID, security.EventTypeRegistration, "User registered with role "+role)
}

func (sl *SecurityLogger) LogLoginSuccess(ctx context.Context, userID string) {
	sl.record(ctx, userID, security.EventTypeLoginSuccess, "User successfully logged in")
}

func (sl *SecurityLogger) LogLoginFailed(ctx context.Context, userID, email, reason string) {
	sl.record(ctx, userID, security.EventTypeLoginFailed, "Login failed for "+email+": "+reason)
}

func (sl *SecurityLogger) LogAccountLocked(ctx context.Context, userID, reason string) {
	sl.record(ctx, userID, security.EventTypeAccountLocked, "Account locked: "+reason)
}

func (sl *SecurityLogger) LogTokenRefreshed(ctx context.Context, userID string) {
	sl.record(ctx, userID, security.EventTypeTokenRefreshed, "Refresh token rotated")
}

func (sl *SecurityLogger) LogLogout(ctx context.Context, userID string) {
	sl.record(ctx, userID, security.EventTypeLogout, "User logged out")
}

func (sl *SecurityLogger) LogAccessDenied(ctx context.Context, action string, err error) {
	userID, _ := middleware.GetUserIDFromContext(ctx)
	sl.record(ctx, userID, security.EventTypeAccessDenied, fmt.Sprintf("%s denied: %v", action, err))
}

func (sl *SecurityLogger) LogTaskDeleted(ctx context.Context, taskID, title string) {
	userID, _ := middleware.GetUserIDFromContext(ctx)
	sl.record(ctx, userID, security.EventTypeTaskDeleted, fmt.Sprintf("Task %s (%q) deleted", taskID, title))
}

func (sl *SecurityLogger) LogRateLimited(ctx context.Context, key, path string) {
	sl.record(ctx, "", security.EventTypeRateLimited, fmt.Sprintf("Rate limit exceeded for %s on %s", key, path))
}
