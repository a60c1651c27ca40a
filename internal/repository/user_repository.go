// internal/repository/user_repository.go
package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/taskassign/internal/models"
)

const usersTable = "users"

var userColumns = []string{
	"id", "email", "password_hash", "role", "failed_login_attempts", "account_locked_until",
	"last_login", "refresh_token", "refresh_token_expires_at", "created_at", "updated_at",
}

type UserRepository struct {
	store
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{store: newStore(db)}
}

// Create inserts u. Emails are stored lowercased; a duplicate yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	insert := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
			u.ID, u.Email, u.PasswordHash, string(u.Role), u.FailedLoginAttempts, u.AccountLockedUntil,
			u.LastLogin, u.RefreshToken, u.RefreshTokenExpiresAt, u.CreatedAt, u.UpdatedAt,
		)

	if _, err := r.exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, entsql.EQ("email", strings.ToLower(strings.TrimSpace(email))))
}

func (r *UserRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, entsql.EQ("refresh_token", token))
}

func (r *UserRepository) getOne(ctx context.Context, p *entsql.Predicate) (*models.User, error) {
	sel := r.builder.Select(userColumns...).From(entsql.Table(usersTable)).Where(p)

	var u models.User
	if err := r.get(ctx, r.db, &u, sel); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListByRole returns users with role, ordered by email.
func (r *UserRepository) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	sel := r.builder.Select(userColumns...).
		From(entsql.Table(usersTable)).
		Where(entsql.EQ("role", string(role))).
		OrderBy(entsql.Asc("email"))

	users := []*models.User{}
	if err := r.selectAll(ctx, r.db, &users, sel); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int, error) {
	sel := r.builder.Select(entsql.Count("*")).
		From(entsql.Table(usersTable)).
		Where(entsql.EQ("role", string(role)))

	var n int
	if err := r.get(ctx, r.db, &n, sel); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// RecordLoginFailure stores the new failure count and an optional lock expiry.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, attempts int, lockedUntil *time.Time) error {
	update := r.builder.Update(usersTable).
		Set("failed_login_attempts", attempts).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id))
	if lockedUntil != nil {
		update = update.Set("account_locked_until", *lockedUntil)
	} else {
		update = update.SetNull("account_locked_until")
	}
	return r.updateOne(ctx, update)
}

// RecordLoginSuccess clears the lockout state and stores the issued refresh token.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id, refreshToken string, expiresAt time.Time) error {
	now := time.Now().UTC()
	update := r.builder.Update(usersTable).
		Set("failed_login_attempts", 0).
		SetNull("account_locked_until").
		Set("last_login", now).
		Set("refresh_token", refreshToken).
		Set("refresh_token_expires_at", expiresAt).
		Set("updated_at", now).
		Where(entsql.EQ("id", id))
	return r.updateOne(ctx, update)
}

// RotateRefreshToken replaces oldToken with newToken. It fails with
// ErrNotFound if oldToken is no longer the stored one.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id, oldToken, newToken string, expiresAt time.Time) error {
	update := r.builder.Update(usersTable).
		Set("refresh_token", newToken).
		Set("refresh_token_expires_at", expiresAt).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.EQ("refresh_token", oldToken),
		))
	return r.updateOne(ctx, update)
}

// ClearRefreshToken removes token wherever it is stored.
func (r *UserRepository) ClearRefreshToken(ctx context.Context, token string) (bool, error) {
	update := r.builder.Update(usersTable).
		SetNull("refresh_token").
		SetNull("refresh_token_expires_at").
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("refresh_token", token))

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return false, fmt.Errorf("clear refresh token: %w", err)
	}
	return n > 0, nil
}

// ClearExpiredRefreshTokens drops refresh tokens that expired before now.
func (r *UserRepository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	update := r.builder.Update(usersTable).
		SetNull("refresh_token").
		SetNull("refresh_token_expires_at").
		Where(entsql.And(
			entsql.NotNull("refresh_token_expires_at"),
			entsql.LT("refresh_token_expires_at", now),
		))

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}
	return n, nil
}

func (r *UserRepository) updateOne(ctx context.Context, update *entsql.UpdateBuilder) error {
	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
