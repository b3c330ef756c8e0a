package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/card-payments/internal/config"
	"github.com/Dan9191/card-payments/internal/events"
	"github.com/Dan9191/card-payments/internal/handler"
	"github.com/Dan9191/card-payments/internal/integrations/gateway"
	"github.com/Dan9191/card-payments/internal/middleware"
	"github.com/Dan9191/card-payments/internal/repository"
	"github.com/Dan9191/card-payments/internal/scheduler"
	"github.com/Dan9191/card-payments/internal/service"
	"github.com/Dan9191/card-payments/internal/utils"
	"github.com/Dan9191/card-payments/internal/utils/email"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		logger.Fatalf("Failed to prepare schema: %v", err)
	}

	key, err := utils.ParseKey(cfg.EncryptionKey)
	if err != nil {
		logger.Fatalf("Invalid ENCRYPTION_KEY: %v", err)
	}
	cipher, err := utils.NewCipher(key)
	if err != nil {
		logger.Fatalf("Failed to initialize cipher: %v", err)
	}

	var authorizer service.Authorizer
	switch cfg.GatewayMode {
	case config.GatewaySOAP:
		authorizer = gateway.NewSOAPClient(cfg.GatewayURL, cfg.GatewayTimeout, logger)
	default:
		authorizer = gateway.NewSimulated(cfg.DeclinedCards, cfg.GatewayLatency, logger)
	}
	logger.Infof("Using %s payment gateway", cfg.GatewayMode)

	opts := service.Options{GatewayTimeout: cfg.GatewayTimeout}
	if cfg.RabbitMQURL != "" {
		publisher, err := events.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQRoutingKey, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize event publisher: %v", err)
		}
		defer publisher.Close()
		opts.Publisher = publisher
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, repo, authorizer, cipher, logger, opts)
	h := handler.NewHandler(svc, logger)

	// Daily report
	var notifier scheduler.SummaryNotifier
	if cfg.EmailEnabled() {
		notifier = email.NewSender(cfg, logger)
	}
	reporter := scheduler.NewReporter(repo, notifier, logger)
	if err := reporter.Schedule(cfg.ReportSchedule); err != nil {
		logger.Fatalf("Failed to schedule report: %v", err)
	}
	reporter.Start()
	defer reporter.Stop()

	// Setup router
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/").Subrouter()
	if cfg.JWTSecret != "" {
		api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	} else {
		logger.Warn("JWT_SECRET is not set, API authentication is disabled")
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		api.Use(middleware.Idempotency(rdb, cfg.IdempotencyTTL, logger))
	}
	h.Routes(api)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 10*time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
}
