package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/congo-pay/authflow/internal/config"
	"github.com/congo-pay/authflow/internal/events"
	"github.com/congo-pay/authflow/internal/infra"
	"github.com/congo-pay/authflow/internal/logging"
	"github.com/congo-pay/authflow/internal/notification"
	"github.com/congo-pay/authflow/internal/routes"
	"github.com/congo-pay/authflow/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.IsDev())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mongoDB *mongo.Database
		pg      *pgxpool.Pool
	)
	switch {
	case cfg.MongoURI != "":
		mongoDB, err = infra.NewMongoDatabase(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			logger.Error("connect mongo", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
				logger.Warn("disconnect mongo", "error", err)
			}
		}()
	case cfg.DatabaseURL != "":
		pg, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
	}

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("redis not configured, rate limiting, idempotency and session revocation are disabled")
	}

	publisher := newPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "error", err)
		}
	}()

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Postgres: pg,
		Mongo:    mongoDB,
		Cache:    cache,
		Logger:   logger,
		Email:    newEmailNotifier(cfg, logger),
		Voice:    newVoiceNotifier(cfg, logger),
		Events:   publisher,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

func newEmailNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	if !cfg.SMTP.Configured() {
		logger.Warn("smtp not configured, emails are written to the log (development only)")
		return notification.NewLoggerNotifier(logger, "email")
	}
	s := cfg.SMTP
	return notification.NewEmailNotifier(s.Host, s.Port, s.Username, s.Password, s.From, s.FromName)
}

func newVoiceNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	if !cfg.Twilio.Configured() {
		logger.Warn("twilio not configured, voice calls are written to the log (development only)")
		return notification.NewLoggerNotifier(logger, "voice")
	}
	t := cfg.Twilio
	return notification.NewVoiceNotifier(t.AccountSID, t.AuthToken, t.PhoneNumber)
}

func newPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		return events.Nop{}
	}
	logger.Info("publishing account events", "topic", cfg.KafkaTopic)
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
