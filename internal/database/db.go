package database

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config for database connection
type Config struct {
	Driver string
	DSN    string
	// MaxOpenConns of zero keeps the driver default.
	MaxOpenConns int
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Dialect maps the sqlx driver name to the ent dialect used for query building.
func Dialect(db *sqlx.DB) string {
	switch db.DriverName() {
	case "sqlite3":
		return dialect.SQLite
	case "mysql":
		return dialect.MySQL
	default:
		return dialect.Postgres
	}
}
