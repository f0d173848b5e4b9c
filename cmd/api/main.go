package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-order-catalog/internal/config"
	"github.com/ariefcatur/go-order-catalog/internal/httpx"
	kafkax "github.com/ariefcatur/go-order-catalog/internal/kafka"
	"github.com/ariefcatur/go-order-catalog/internal/logging"
	"github.com/ariefcatur/go-order-catalog/internal/orders"
	"github.com/ariefcatur/go-order-catalog/internal/postgres"
	"github.com/ariefcatur/go-order-catalog/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	oh := &httpx.OrdersHandler{
		Repo:    &orders.Repo{DB: db},
		Service: cfg.ServiceName,
		Log:     log,
	}

	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, cache will miss until it recovers", zap.Error(err))
		}
		oh.Cache = redisx.NewOrderCache(rdb, log)
	}

	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderEvents, 1024, log)
		prod.Start()
		oh.Producer = prod
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := httpx.NewRouter(httpx.RouterConfig{Log: log, CORSOrigins: cfg.CORSOrigins, Registry: reg})
	router.Route("/api", func(api chi.Router) {
		oh.Register(api)
		httpx.RegisterMeta(api)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	if err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
