// internal/service/auth_service_test.go
package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/policy"
	"github.com/gurkanbulca/taskassign/pkg/security"
)

func TestAuthService_Register(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()

	h.CreateEmployee("taken@example.com")

	tests := []struct {
		name     string
		input    RegisterInput
		wantErr  error
		wantRole models.Role
	}{
		{
			name:     "defaults to employee",
			input:    RegisterInput{Email: "  Jane@Example.com ", Password: "secret1"},
			wantRole: models.RoleEmployee,
		},
		{
			name:     "admin allowed by config",
			input:    RegisterInput{Email: "boss@example.com", Password: "secret1", Role: "admin"},
			wantRole: models.RoleAdmin,
		},
		{
			name:    "invalid email",
			input:   RegisterInput{Email: "jane", Password: "secret1"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "short password",
			input:   RegisterInput{Email: "short@example.com", Password: "12345"},
			wantErr: ErrWeakPassword,
		},
		{
			name:    "unknown role",
			input:   RegisterInput{Email: "m@example.com", Password: "secret1", Role: "manager"},
			wantErr: ErrInvalidInput,
		},
		{
			name:    "duplicate email ignores case",
			input:   RegisterInput{Email: "TAKEN@example.com", Password: "secret1"},
			wantErr: ErrEmailTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := svc.Register(ctx, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, u.Role)
			assert.NotEqual(t, tt.input.Password, u.PasswordHash)
			assert.Equal(t, strings.ToLower(strings.TrimSpace(tt.input.Email)), u.Email)
		})
	}

	assert.Len(t, h.EventsOfType(string(security.EventTypeRegistration)), 2)
}

func TestAuthService_RegisterAdminDisabled(t *testing.T) {
	h := NewTestHelpers(t)
	cfg := h.SecurityConfig()
	cfg.AllowAdminRegistration = false
	svc := NewAuthService(h.users, h.tokenManager, h.passwordManager, h.SecurityLogger(), cfg, h.logger)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "secret1", Role: "admin"})
	assert.ErrorIs(t, err, policy.ErrAccessDenied)
}

func TestAuthService_Login(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()
	emp := h.CreateEmployee("emp@example.com")

	res, err := svc.Login(ctx, "EMP@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, emp.ID, res.User.ID)
	require.NotNil(t, res.User.LastLogin)

	s, err := svc.Identify(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, policy.Requester{ID: emp.ID, Role: models.RoleEmployee}, s.Requester())

	stored, err := h.users.GetByID(ctx, emp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.RefreshToken)
	assert.Equal(t, res.Tokens.RefreshToken, *stored.RefreshToken)

	_, err = svc.Login(ctx, "emp@example.com", "wrong-password")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	assert.Len(t, h.EventsOfType(string(security.EventTypeLoginSuccess)), 1)
	assert.Len(t, h.EventsOfType(string(security.EventTypeLoginFailed)), 2)
}

func TestAuthService_AccountLockout(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()
	emp := h.CreateEmployee("emp@example.com")

	now := time.Now()
	svc.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, emp.Email, "wrong")
		assert.ErrorIs(t, err, policy.ErrInvalidCredential)
	}

	_, err := svc.Login(ctx, emp.Email, "wrong")
	assert.ErrorIs(t, err, ErrAccountLocked)

	// correct password is refused while locked
	_, err = svc.Login(ctx, emp.Email, "secret1")
	assert.ErrorIs(t, err, ErrAccountLocked)
	assert.Len(t, h.EventsOfType(string(security.EventTypeAccountLocked)), 1)

	now = now.Add(16 * time.Minute)

	// a failure after the lock expired starts counting again
	_, err = svc.Login(ctx, emp.Email, "wrong")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	_, err = svc.Login(ctx, emp.Email, "secret1")
	require.NoError(t, err)

	stored, err := h.users.GetByID(ctx, emp.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.Nil(t, stored.AccountLockedUntil)
}

func TestAuthService_Refresh(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()
	h.CreateAdmin("admin@example.com")

	login, err := svc.Login(ctx, "admin@example.com", "secret1")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	// rotated tokens cannot be replayed
	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	// access tokens are not refresh tokens
	_, err = svc.Refresh(ctx, refreshed.Tokens.AccessToken)
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	_, err = svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)

	assert.Len(t, h.EventsOfType(string(security.EventTypeTokenRefreshed)), 1)
}

func TestAuthService_LogoutAndCleanup(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()
	h.CreateEmployee("emp@example.com")

	login, err := svc.Login(ctx, "emp@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.Tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, login.Tokens.RefreshToken))
	require.NoError(t, svc.Logout(ctx, ""))

	_, err = svc.Refresh(ctx, login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)
	assert.Len(t, h.EventsOfType(string(security.EventTypeLogout)), 1)

	_, err = svc.Login(ctx, "emp@example.com", "secret1")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err := svc.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestAuthService_Me(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()
	ctx := context.Background()
	emp := h.CreateEmployee("emp@example.com")

	u, err := svc.Me(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, "emp@example.com", u.Email)

	_, err = svc.Me(ctx, "7f1c52f4-3a8c-4b0e-9a55-0d7f0b6c9e11")
	assert.ErrorIs(t, err, policy.ErrNotFound)

	_, err = svc.Me(ctx, "")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)
}

func TestAuthService_IdentifyRejectsGarbage(t *testing.T) {
	h := NewTestHelpers(t)
	svc := h.AuthService()

	_, err := svc.Identify(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, policy.ErrInvalidCredential)
}
