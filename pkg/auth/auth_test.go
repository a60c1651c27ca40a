package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenManager() *TokenManager {
	return NewTokenManager("access-secret", "refresh-secret", time.Hour, 7*24*time.Hour)
}

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := newTestTokenManager()

	pair, err := tm.GenerateTokenPair("user-1", "a@example.com", "employee")
	require.NoError(t, err)
	assert.EqualValues(t, 3600, pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := tm.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "employee", claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expiry(), 5*time.Second)

	refresh, err := tm.ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.Type)
}

func TestTokenManager_RejectsWrongType(t *testing.T) {
	tm := NewTokenManager("same", "same", time.Hour, time.Hour)

	pair, err := tm.GenerateTokenPair("user-1", "a@example.com", "admin")
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestTokenManager_RejectsForeignSignature(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("other", "other", time.Hour, time.Hour)

	pair, err := other.GenerateTokenPair("user-1", "a@example.com", "admin")
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_Expired(t *testing.T) {
	tm := newTestTokenManager()
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	pair, err := tm.GenerateTokenPair("user-1", "a@example.com", "employee")
	require.NoError(t, err)

	tm.now = time.Now
	_, err = tm.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	tm := newTestTokenManager()

	claims := CustomClaims{UserID: "user-1", Role: "admin", Type: TokenTypeAccess}
	claims.Issuer = "taskassign"
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ValidateAccessToken(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "missing scheme", header: "abc", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
		{name: "empty", header: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPasswordManager(t *testing.T) {
	pm := NewPasswordManager(WithCost(4))

	hash, err := pm.HashPassword("secret")
	require.NoError(t, err)
	assert.NoError(t, pm.ComparePassword(hash, "secret"))
	assert.Error(t, pm.ComparePassword(hash, "Secret"))

	_, err = pm.HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestPasswordManager_Options(t *testing.T) {
	pm := NewPasswordManager(WithMinLength(8), WithComplexity(), WithCost(4))

	assert.ErrorIs(t, pm.ValidatePassword("abcdefg"), ErrWeakPassword)
	assert.ErrorIs(t, pm.ValidatePassword("abcdefgh"), ErrWeakPassword)
	assert.ErrorIs(t, pm.ValidatePassword("Abcdefgh"), ErrWeakPassword)
	assert.NoError(t, pm.ValidatePassword("Abcdefg1"))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("jane.doe@example.com"))
	assert.ErrorIs(t, ValidateEmail("jane"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("jane@example"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("a b@example.com"), ErrInvalidEmail)
}
