package main

// Apply the users, credits, payments and analyses schema:
//   go run ./cmd/migrate

import (
	"context"
	"os"

	"github.com/FIipFIop/perp-prediction/internal/shared/config"
	"github.com/FIipFIop/perp-prediction/internal/shared/storage/db"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		telemetry.Error("migrate.failed", map[string]any{"error": "DATABASE_URL is required"})
		os.Exit(1)
	}
	ctx := context.Background()

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, db.RoleMigrate)
	if err != nil {
		telemetry.Error("migrate.connect_failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		telemetry.Error("migrate.failed", map[string]any{"error": err.Error()})
		sqlDB.Close()
		os.Exit(1)
	}
	telemetry.Info("migrate.complete", nil)
}
