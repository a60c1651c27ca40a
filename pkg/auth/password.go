// pkg/auth/password.go
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrWeakPassword = errors.New("password does not meet requirements")
	ErrInvalidEmail = errors.New("invalid email format")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// PasswordManager handles password hashing and validation
type PasswordManager struct {
	minLength     int
	cost          int
	requireUpper  bool
	requireNumber bool
}

// PasswordOption tweaks a PasswordManager.
type PasswordOption func(*PasswordManager)

// WithMinLength sets the minimum password length.
func WithMinLength(n int) PasswordOption {
	return func(pm *PasswordManager) { pm.minLength = n }
}

// WithCost sets the bcrypt cost. Values outside bcrypt's range fall back to the default.
func WithCost(cost int) PasswordOption {
	return func(pm *PasswordManager) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			pm.cost = cost
		}
	}
}

// WithComplexity requires an uppercase letter and a digit.
func WithComplexity() PasswordOption {
	return func(pm *PasswordManager) {
		pm.requireUpper = true
		pm.requireNumber = true
	}
}

// NewPasswordManager creates a new password manager. Without options it
// only enforces a minimum length of 6.
func NewPasswordManager(opts ...PasswordOption) *PasswordManager {
	pm := &PasswordManager{
		minLength: 6,
		cost:      bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// HashPassword hashes a password using bcrypt
func (pm *PasswordManager) HashPassword(password string) (string, error) {
	// Validate password strength
	if err := pm.ValidatePassword(password); err != nil {
		return "", err
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), pm.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hashedBytes), nil
}

// ComparePassword compares a password with a hash
func (pm *PasswordManager) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword checks if a password meets the requirements
func (pm *PasswordManager) ValidatePassword(password string) error {
	if len(password) < pm.minLength {
		return fmt.Errorf("%w: minimum length is %d characters", ErrWeakPassword, pm.minLength)
	}

	var hasUpper, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if pm.requireUpper && !hasUpper {
		return fmt.Errorf("%w: must contain at least one uppercase letter", ErrWeakPassword)
	}
	if pm.requireNumber && !hasNumber {
		return fmt.Errorf("%w: must contain at least one number", ErrWeakPassword)
	}

	return nil
}

// ValidateEmail validates an email address format
func ValidateEmail(email string) error {
	if len(email) > 255 {
		return fmt.Errorf("%w: address too long", ErrInvalidEmail)
	}
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}
