package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aspire/internal/ai"
	"aspire/internal/cache"
	"aspire/internal/config"
	"aspire/internal/db"
	"aspire/internal/events"
	"aspire/internal/gateway"
	"aspire/internal/handlers"
	"aspire/internal/jobs"
	"aspire/internal/services"
	"aspire/internal/store"
	"aspire/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		balanceCache cache.Cache  = cache.Nop{}
		locker       cache.Locker = cache.NopLocker{}
	)
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Warn("redis unavailable, running without cache and order locks", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer client.Close()
			balanceCache = cache.NewRedisCache(client)
			locker = cache.NewRedisLocker(client)
		}
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Error("failed to create kafka producer", "brokers", cfg.KafkaBrokers, "error", err)
			os.Exit(1)
		}
		publisher = events.NewKafkaPublisher(producer)
	}
	defer publisher.Close()

	accounts := store.NewAccountStore(database)
	entries := store.NewLedgerStore(database)
	payments := store.NewPaymentStore(database)
	costs := store.NewFeatureCostStore(database)
	outbox := store.NewOutboxStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	websocket.SetOriginCheck(originCheck(cfg.AllowedOrigins))

	ledger := services.NewLedger(txRunner, accounts, entries, outbox, hub, balanceCache, logger, services.LedgerConfig{
		LedgerTopic:    cfg.LedgerTopic,
		DefaultBalance: cfg.DefaultBalance,
		SignupGrant:    cfg.SignupGrant,
		CacheTTL:       cfg.CacheTTL,
	})
	registry := services.NewCostRegistry(txRunner, costs, balanceCache, logger, cfg.CacheTTL)
	paymentService := services.NewPaymentService(txRunner, payments, outbox, ledger,
		gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret),
		locker, logger, services.PaymentConfig{
			PaymentTopic: cfg.PaymentTopic,
			KeyID:        cfg.GatewayKeyID,
			KeySecret:    cfg.GatewayKeySecret,
			Currency:     cfg.GatewayCurrency,
		})
	runner := services.NewFeatureRunner(ledger, registry,
		ai.NewClient(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.SiteURL),
		services.NewUsageMeter(true), cfg.Pricing, logger)

	relay := jobs.NewOutboxRelay(outbox, publisher, logger, jobs.OutboxRelayConfig{
		Interval:    cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		relay.Run(ctx)
	}()

	handler := handlers.New(cfg, logger, ledger, registry, runner, paymentService, accounts, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("token API listening", "addr", server.Addr, "env", cfg.AppEnv, "pricing", cfg.Pricing)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	<-relayDone
	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	opts.Level = slog.LevelDebug
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func originCheck(allowed string) func(*http.Request) bool {
	if allowed == "" || allowed == "*" {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return r.Header.Get("Origin") == allowed
	}
}
