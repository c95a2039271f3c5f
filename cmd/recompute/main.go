// Command recompute rebuilds every credit pair balance from the transaction
// log. Run it once after importing data written without the balance trigger,
// or whenever a balance is suspected to have drifted.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/khata-app/khata_backend/internal/config"
	"github.com/khata-app/khata_backend/internal/infra"
	"github.com/khata-app/khata_backend/internal/ledger"
	"github.com/khata-app/khata_backend/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := ledger.NewPostgresStore(db)
	start := time.Now()
	repaired, err := store.RecomputeAll(ctx)
	if err != nil {
		logger.Error("recompute failed", "error", err)
		os.Exit(1)
	}

	logger.Info("recompute finished", "pairs", repaired, "duration", time.Since(start))
}
