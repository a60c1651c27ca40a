package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gurkanbulca/taskassign/internal/config"
	"github.com/gurkanbulca/taskassign/internal/database"
	"github.com/gurkanbulca/taskassign/internal/models"
	"github.com/gurkanbulca/taskassign/internal/repository"
	"github.com/gurkanbulca/taskassign/pkg/auth"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found")
	}

	var seedAdmin string
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the database schema",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger, seedAdmin)
		},
	}
	cmd.Flags().StringVar(&seedAdmin, "seed-admin", "", "create an admin account, given as email:password")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, seedAdmin string) error {
	db, err := database.Open(ctx, database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.ConnectionString(),
	})
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("running database migrations", "driver", cfg.Database.Driver)
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("migrations completed")

	if seedAdmin == "" {
		return nil
	}

	email, password, ok := strings.Cut(seedAdmin, ":")
	if !ok {
		return errors.New("--seed-admin must be email:password")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if err := auth.ValidateEmail(email); err != nil {
		return err
	}

	pm := auth.NewPasswordManager(
		auth.WithMinLength(cfg.Security.PasswordMinLength),
		auth.WithCost(cfg.Security.BcryptCost),
	)
	hash, err := pm.HashPassword(password)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	admin := &models.User{Email: email, PasswordHash: hash, Role: models.RoleAdmin}
	if err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			logger.Info("admin already exists", "email", email)
			return nil
		}
		return fmt.Errorf("seed admin: %w", err)
	}
	logger.Info("admin created", "email", email, "id", admin.ID)
	return nil
}
