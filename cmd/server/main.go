package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/wordCupProject/worldcup/internal/auth"
	"github.com/wordCupProject/worldcup/internal/config"
	"github.com/wordCupProject/worldcup/internal/database"
	"github.com/wordCupProject/worldcup/internal/gateway"
	"github.com/wordCupProject/worldcup/internal/handler"
	"github.com/wordCupProject/worldcup/internal/logger"
	"github.com/wordCupProject/worldcup/internal/middleware"
	"github.com/wordCupProject/worldcup/internal/queue"
	"github.com/wordCupProject/worldcup/internal/repository"
	"github.com/wordCupProject/worldcup/internal/router"
	"github.com/wordCupProject/worldcup/internal/service"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = database.Migrate(migrateCtx, db)
	cancel()
	if err != nil {
		log.Fatal("migrate database", zap.Error(err))
	}

	key := auth.KeyFromSecret(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		// Tokens issued with a generated key do not survive a restart.
		if key, err = auth.NewSigningKey(); err != nil {
			log.Fatal("generate signing key", zap.Error(err))
		}
		log.Warn("JWT_SECRET not set, using an in-memory signing key")
	}
	tokens := auth.NewTokenService(key, cfg.TokenTTL)

	seed := cfg.Gateway.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gw := gateway.NewSimulator(gateway.NewRandomSource(seed),
		gateway.Latency{Min: cfg.Gateway.MinLatency, Max: cfg.Gateway.MaxLatency}, log.Named("gateway"))

	var events service.EventPublisher
	if cfg.AMQPURL != "" {
		pub := queue.NewPublisher(cfg.AMQPURL, log.Named("publisher"))
		defer pub.Close()
		events = pub
		go func() {
			if err := queue.StartPaymentLogConsumer(ctx, cfg.AMQPURL, cfg.LogsDir, log.Named("consumer")); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("payment consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Info("RABBITMQ_URL not set, payment events disabled")
	}

	users := repository.NewUserRepo(db)
	reservations := repository.NewReservationRepo(db)
	payments := repository.NewPaymentRepo(db, reservations)

	userSvc := service.NewUserService(users, tokens, cfg.BcryptCost, log.Named("users"))
	reservationSvc := service.NewReservationService(reservations, payments, cfg.NightlyRate, log.Named("reservations"))
	paymentSvc := service.NewPaymentService(payments, gw, events, service.ParseRetryPolicy(cfg.RetryPolicy), log.Named("payments"))

	var limit echo.MiddlewareFunc
	if rdb := config.NewRedisClient(log); rdb != nil {
		defer rdb.Close()
		limit = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit"))
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(logger.RequestLogger(log))

	router.Register(e, router.Deps{
		Tokens:       tokens,
		Health:       handler.Health(db),
		Auth:         handler.NewAuthHandler(userSvc, log),
		Reservations: handler.NewReservationHandler(reservationSvc, log),
		Payments:     handler.NewPaymentHandler(paymentSvc, reservationSvc, log),
		Limit:        limit,
	})

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
