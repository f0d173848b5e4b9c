package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-order-catalog/internal/audit"
	"github.com/ariefcatur/go-order-catalog/internal/config"
	kafkax "github.com/ariefcatur/go-order-catalog/internal/kafka"
	"github.com/ariefcatur/go-order-catalog/internal/logging"
	"github.com/ariefcatur/go-order-catalog/internal/orders"
	"github.com/ariefcatur/go-order-catalog/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.AuditGroup, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		log.Fatal("audit needs KAFKA_BROKERS and REDIS_ADDR")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &audit.Service{Redis: rdb, Log: log, ServiceName: cfg.AuditGroup}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.AuditGroup, orders.TopicOrderEvents, cfg.AuditWorkers, log)

	log.Info("audit consumer started",
		zap.String("group", cfg.AuditGroup),
		zap.String("topic", orders.TopicOrderEvents),
		zap.Int("workers", cfg.AuditWorkers))
	if err := cons.Start(ctx, svc.HandleOrderEvent); err != nil {
		log.Error("consumer exit", zap.Error(err))
		os.Exit(1)
	}
	log.Info("audit consumer stopped")
}
