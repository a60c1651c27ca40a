// internal/service/auth_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gurkanbulca/taskassign/internal/config"
	"github.com/gurkanbulca/taskassign/internal/middleware"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/pkg/auth"
)

// UserStore is the persistence the auth and user services need.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]*models.User, error)
	RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error
	RecordLoginSuccess(ctx context.Context, id, refreshToken string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, token string) (bool, error)
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type AuthService struct {
	users           UserStore
	tokenManager    *auth.TokenManager
	passwordManager *auth.PasswordManager
	authenticator   *middleware.Authenticator
	securityLogger  *SecurityLogger
	securityConfig  config.SecurityConfig
	logger          *slog.Logger
	now             func() time.Time
}

// NewAuthService creates a new authentication service with configurable security settings
func NewAuthService(
	users UserStore,
	tokenManager *auth.TokenManager,
	passwordManager *auth.PasswordManager,
	securityLogger *SecurityLogger,
	securityConfig config.SecurityConfig,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:           users,
		tokenManager:    tokenManager,
		passwordManager: passwordManager,
		authenticator:   middleware.NewAuthenticator(tokenManager),
		securityLogger:  securityLogger,
		securityConfig:  securityConfig,
		logger:          logger,
		now:             time.Now,
	}
}

// RegisterInput is a new account request.
type RegisterInput struct {
	Email    string
	Password string
	Role     string
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	User   *models.User
	Tokens *auth.TokenPair
}

// Register creates a new user account. The role defaults to employee.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := auth.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	role, err := models.ParseRole(strings.TrimSpace(in.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if role == models.RoleAdmin && !s.securityConfig.AllowAdminRegistration {
		return nil, fmt.Errorf("%w: admin registration is disabled", policy.ErrAccessDenied)
	}

	hashedPassword, err := s.passwordManager.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.securityLogger.LogRegistration(ctx, u.ID, string(u.Role))
	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login authenticates a user and returns tokens. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	loginID := strings.ToLower(strings.TrimSpace(email))
	if loginID == "" || password == "" {
		return nil, policy.ErrInvalidCredential
	}

	now := s.now()
	foundUser, err := s.users.GetByEmail(ctx, loginID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.securityLogger.LogLoginFailed(ctx, "", loginID, "user not found")
			return nil, policy.ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if foundUser.IsLocked(now) {
		s.securityLogger.LogLoginFailed(ctx, foundUser.ID, loginID, "account locked")
		return nil, fmt.Errorf("%w until %s", ErrAccountLocked, foundUser.AccountLockedUntil.UTC().Format(time.RFC3339))
	}

	if err := s.passwordManager.ComparePassword(foundUser.PasswordHash, password); err != nil {
		return nil, s.recordFailure(ctx, foundUser, now)
	}

	pair, err := s.tokenManager.GenerateTokenPair(foundUser.ID, foundUser.Email, string(foundUser.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	if err := s.users.RecordLoginSuccess(ctx, foundUser.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	foundUser.FailedLoginAttempts = 0
	foundUser.AccountLockedUntil = nil
	foundUser.LastLogin = &now

	s.securityLogger.LogLoginSuccess(ctx, foundUser.ID)
	return &LoginResult{User: foundUser, Tokens: pair}, nil
}

// recordFailure counts a bad password and locks the account once
// MaxLoginAttempts is reached.
func (s *AuthService) recordFailure(ctx context.Context, u *models.User, now time.Time) error {
	attempts := u.FailedLoginAttempts + 1
	// an expired lock starts a fresh series
	if u.AccountLockedUntil != nil {
		attempts = 1
	}

	var lockUntil *time.Time
	if attempts >= s.securityConfig.MaxLoginAttempts {
		t := now.Add(s.securityConfig.AccountLockoutDuration).UTC()
		lockUntil = &t
	}

	if err := s.users.RecordLoginFailure(ctx, u.ID, attempts, lockUntil); err != nil {
		s.logger.Error("failed to record login failure", "user_id", u.ID, "error", err)
	}

	if lockUntil != nil {
		s.securityLogger.LogAccountLocked(ctx, u.ID,
			fmt.Sprintf("max login attempts (%d) exceeded", s.securityConfig.MaxLoginAttempts))
		return fmt.Errorf("%w until %s", ErrAccountLocked, lockUntil.Format(time.RFC3339))
	}

	s.securityLogger.LogLoginFailed(ctx, u.ID, u.Email,
		fmt.Sprintf("invalid password (attempt %d of %d)", attempts, s.securityConfig.MaxLoginAttempts))
	return policy.ErrInvalidCredential
}

// Refresh exchanges a stored refresh token for a new pair. The old refresh
// token stops working.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, policy.ErrInvalidCredential
	}

	claims, err := s.tokenManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", policy.ErrInvalidCredential, err)
	}

	foundUser, err := s.users.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: refresh token revoked", policy.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if foundUser.ID != claims.UserID {
		return nil, policy.ErrInvalidCredential
	}
	if foundUser.RefreshTokenExpiresAt != nil && !s.now().Before(*foundUser.RefreshTokenExpiresAt) {
		return nil, fmt.Errorf("%w: refresh token expired", policy.ErrInvalidCredential)
	}

	// Role comes from the store so demotions take effect on refresh.
	pair, err := s.tokenManager.GenerateTokenPair(foundUser.ID, foundUser.Email, string(foundUser.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	if err := s.users.RotateRefreshToken(ctx, foundUser.ID, refreshToken, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: refresh token already used", policy.ErrInvalidCredential)
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	s.securityLogger.LogTokenRefreshed(ctx, foundUser.ID)
	return &LoginResult{User: foundUser, Tokens: pair}, nil
}

// Logout revokes refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	cleared, err := s.users.ClearRefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	if cleared {
		if claims, err := s.tokenManager.ValidateRefreshToken(refreshToken); err == nil {
			s.securityLogger.LogLogout(ctx, claims.UserID)
		}
	}
	return nil
}

// Identify resolves an access token into the caller's identity.
func (s *AuthService) Identify(_ context.Context, accessToken string) (middleware.Session, error) {
	return s.authenticator.Identify(accessToken)
}

// Authenticator exposes the token authenticator for HTTP middleware.
func (s *AuthService) Authenticator() *middleware.Authenticator {
	return s.authenticator
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, policy.ErrInvalidCredential
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, policy.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// CleanupExpiredTokens drops refresh tokens past their expiry.
func (s *AuthService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return s.users.ClearExpiredRefreshTokens(ctx, s.now().UTC())
}
