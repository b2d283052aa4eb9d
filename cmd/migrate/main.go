// cmd/migrate/main.go
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	"expense-tracker/internal/config"
	"expense-tracker/internal/storage/postgres"
	"expense-tracker/internal/storage/sqlite"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Applies the embedded schema migrations for the SQL backends.
// The JSON and MongoDB backends have no schema to migrate.
func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	var (
		db      *sql.DB
		err     error
		migrate func(context.Context, *sql.DB) error
	)
	switch cfg.DataBackend {
	case config.BackendPostgres:
		db, err = sql.Open("pgx", cfg.DBConn)
		migrate = postgres.Migrate
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0o755); err != nil {
			logger.Error("Failed to create database directory", "error", err)
			os.Exit(1)
		}
		db, err = sql.Open("sqlite", cfg.SQLiteDBPath)
		migrate = sqlite.Migrate
	default:
		logger.Info("Nothing to migrate", "backend", cfg.DataBackend)
		return
	}
	if err != nil {
		logger.Error("Failed to open database", "backend", cfg.DataBackend, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Applying migrations", "backend", cfg.DataBackend)
	if err := migrate(ctx, db); err != nil {
		logger.Error("Migrations failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Migrations applied")
}
