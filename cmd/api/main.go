package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dkomnen/bankledger/internal/accounts"
	"github.com/dkomnen/bankledger/internal/api"
	"github.com/dkomnen/bankledger/internal/config"
	"github.com/dkomnen/bankledger/internal/events"
	eventskafka "github.com/dkomnen/bankledger/internal/events/kafka"
	"github.com/dkomnen/bankledger/internal/ledger"
	"github.com/dkomnen/bankledger/internal/session"
	"github.com/dkomnen/bankledger/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := postgres.NewStore(ctx, cfg.DBSource)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.Setup(ctx); err != nil {
		logger.Fatal("schema setup failed", zap.Error(err))
	}
	logger.Info("database ready")

	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := eventskafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		logger.Info("kafka publisher enabled", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	sessions := session.NewStore(store, []byte(cfg.JWTSecret), cfg.SessionLifetime, logger)
	ledgerSvc := ledger.NewService(store, publisher, logger)
	accountsSvc := accounts.NewService(store, sessions, logger)

	// Expired session rows are reaped in the background. Validation does not
	// depend on this; it only keeps the table small.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := sessions.Reap(ctx); err != nil {
				logger.Warn("session reap failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("reaped expired sessions", zap.Int64("count", n))
			}
		}
	}()

	handler := api.NewHandler(ledgerSvc, sessions, accountsSvc, logger)
	router := api.NewRouter(handler)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
