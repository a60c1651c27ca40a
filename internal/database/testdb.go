package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewTestDB opens a private in-memory SQLite database with the schema applied.
// Each call gets its own database so tests can run in parallel.
func NewTestDB(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.NewString())
	db, err := Open(context.Background(), Config{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)

	require.NoError(t, Migrate(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return db
}
