package main

import (
	"context"
	"time"

	"github.com/ariefcatur/go-order-catalog/internal/config"
	"github.com/ariefcatur/go-order-catalog/internal/logging"
	"github.com/ariefcatur/go-order-catalog/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// setupdb recreates the schema and seeds the product catalog. All existing
// orders are dropped.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.ServiceName+"-setupdb", cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := postgres.Bootstrap(ctx, cfg.PostgresDSN, log); err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	log.Info("database ready")
}
