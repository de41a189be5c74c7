package main

import (
	"context"
	"flag"
	"log"

	"github.com/prperemyshlev/authgate/internal/config"
	"github.com/prperemyshlev/authgate/internal/repository"
	"github.com/prperemyshlev/authgate/pkg/observability"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := repository.Migrate(cfg.Postgres.URL(), *direction); err != nil {
		logger.Fatal("Migration failed", zap.String("direction", *direction), zap.Error(err))
	}

	logger.Info("Migrations applied", zap.String("direction", *direction))
}
