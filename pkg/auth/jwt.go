// pkg/auth/jwt.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenManager manages JWT tokens
type TokenManager struct {
	accessSecret    []byte
	refreshSecret   []byte
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string
	now             func() time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager(accessSecret, refreshSecret string, accessDuration, refreshDuration time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:    []byte(accessSecret),
		refreshSecret:   []byte(refreshSecret),
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
		issuer:          "taskassign",
		now:             time.Now,
	}
}

// CustomClaims represents the custom JWT claims
type CustomClaims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresAt time.Time
}

// GenerateTokenPair generates both access and refresh tokens
func (tm *TokenManager) GenerateTokenPair(userID, email, role string) (*TokenPair, error) {
	now := tm.now()

	accessToken, err := tm.generateToken(userID, email, role, TokenTypeAccess, tm.accessSecret, now, tm.accessDuration)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := tm.generateToken(userID, email, role, TokenTypeRefresh, tm.refreshSecret, now, tm.refreshDuration)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int64(tm.accessDuration.Seconds()),
		RefreshExpiresAt: now.Add(tm.refreshDuration),
	}, nil
}

// generateToken creates a JWT token with custom claims
func (tm *TokenManager) generateToken(userID, email, role, tokenType string, secret []byte, now time.Time, duration time.Duration) (string, error) {
	claims := CustomClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tm.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateAccessToken validates an access token and returns the claims
func (tm *TokenManager) ValidateAccessToken(tokenString string) (*CustomClaims, error) {
	return tm.validateToken(tokenString, TokenTypeAccess, tm.accessSecret)
}

// ValidateRefreshToken validates a refresh token and returns the claims
func (tm *TokenManager) ValidateRefreshToken(tokenString string) (*CustomClaims, error) {
	return tm.validateToken(tokenString, TokenTypeRefresh, tm.refreshSecret)
}

// validateToken validates a token and returns the custom claims
func (tm *TokenManager) validateToken(tokenString, expectedType string, secret []byte) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(tm.issuer), jwt.WithTimeFunc(tm.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidClaims, expectedType, claims.Type)
	}
	if claims.UserID == "" || claims.Role == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

// Expiry returns the expiry carried by the claims.
func (c *CustomClaims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExtractTokenFromHeader extracts the token from the Authorization header
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(authHeader[7:])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
