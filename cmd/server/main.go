package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tmorris/brokerage-service/internal/api"
	"github.com/tmorris/brokerage-service/internal/config"
	"github.com/tmorris/brokerage-service/internal/database"
	"github.com/tmorris/brokerage-service/internal/kafka"
	"github.com/tmorris/brokerage-service/internal/portfolio"
	"github.com/tmorris/brokerage-service/internal/quote"
	"github.com/tmorris/brokerage-service/internal/session"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("db migrations", zap.Error(err))
	}

	// Sessions: Redis when configured, in-memory otherwise
	var sessions session.Store
	if cfg.Session.RedisAddr != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.Session.TTL)
		if err != nil {
			logger.Fatal("redis connect", zap.Error(err))
		}
		defer redisStore.Close()
		sessions = redisStore
		logger.Info("using redis session store", zap.String("addr", cfg.Session.RedisAddr))
	} else {
		sessions = session.NewMemoryStore(cfg.Session.TTL)
		logger.Info("using in-memory session store")
	}

	// Optional trade-event producer
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		logger.Info("kafka producer enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Quotes and portfolio
	quoteClient := quote.NewClient(cfg.Quote.BaseURL, cfg.Quote.APIKey, logger)
	priceCache := quote.NewPriceCache(quoteClient, cfg.Quote.CacheTTL, logger)

	var publisher portfolio.EventPublisher
	if producer != nil {
		publisher = producer
	}
	pf := portfolio.New(priceCache, db, publisher, logger)
	if err := pf.Hydrate(); err != nil {
		logger.Fatal("portfolio hydrate", zap.Error(err))
	}

	handler := api.NewHandler(db, db, sessions, pf, quoteClient, logger)
	router := api.SetupRoutes(handler)

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
