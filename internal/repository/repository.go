// internal/repository/repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/gurkanbulca/taskassign/internal/database"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("record already exists")
	ErrVersionConflict = errors.New("record was modified concurrently")
	ErrForeignKey      = errors.New("referenced record does not exist")
)

// store bundles the connection with a dialect-aware query builder.
type store struct {
	db      *sqlx.DB
	builder *entsql.DialectBuilder
}

func newStore(db *sqlx.DB) store {
	return store{db: db, builder: entsql.Dialect(database.Dialect(db))}
}

// querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type querier interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s store) get(ctx context.Context, q querier, dest interface{}, b entsql.Querier) error {
	query, args := b.Query()
	if err := q.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s store) selectAll(ctx context.Context, q querier, dest interface{}, b entsql.Querier) error {
	query, args := b.Query()
	return q.SelectContext(ctx, dest, query, args...)
}

func (s store) exec(ctx context.Context, q querier, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// translate maps driver constraint errors onto repository errors.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Constraint)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %v", ErrDuplicate, liteErr)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", ErrForeignKey, liteErr)
		}
	}
	return err
}

// Helper function for transaction rollback
func rollback(tx *sqlx.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}
