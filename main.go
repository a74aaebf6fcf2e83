package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/qzplatform/qz-service/internal/config"
	"github.com/qzplatform/qz-service/internal/events"
	"github.com/qzplatform/qz-service/internal/handlers"
	"github.com/qzplatform/qz-service/internal/mailer"
	"github.com/qzplatform/qz-service/internal/repositories/postgres"
	"github.com/qzplatform/qz-service/internal/services"
	"github.com/qzplatform/qz-service/internal/sharelink"
	"github.com/qzplatform/qz-service/internal/utils"
	"github.com/qzplatform/qz-service/internal/validator"
	"github.com/qzplatform/qz-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(slogLogger)
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Redis unavailable, running without cache", "error", err)
			redisClient = nil
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	publisher, err := events.NewEventPublisher(cfg.Kafka.BrokerList(), cfg.Kafka.TopicPrefix, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize event publisher: %v", err)
	}

	transport, err := mailer.NewTransport(cfg.Mail, slogLogger)
	if err != nil {
		log.Fatalf("Failed to initialize mail transport: %v", err)
	}

	// Mail goes through RabbitMQ when a queue is configured so a slow transport
	// never blocks a request or a poller tick
	var (
		mail      mailer.Mailer = transport
		mailQueue *mailer.Queue
	)
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	if cfg.Mail.QueueURL != "" {
		mailQueue, err = mailer.DialQueue(cfg.Mail.QueueURL, cfg.Mail.QueueName, transport, slogLogger)
		if err != nil {
			log.Fatalf("Failed to connect to mail queue: %v", err)
		}
		mail = mailQueue
		go func() {
			if err := mailQueue.Run(queueCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Mail queue consumer stopped", "error", err)
			}
		}()
	}

	serviceManager := services.NewServiceManager(services.Dependencies{
		DB:        db,
		Repo:      repo,
		Logger:    slogLogger,
		Validator: validator.New(),
		Mailer:    mail,
		Codec:     sharelink.NewCodec(cfg.Link.Secret, cfg.BaseURL, cfg.Link.TTL),
		Publisher: publisher,
	}, services.ServiceManagerConfig{
		BaseURL:           cfg.BaseURL,
		AccessCodeLength:  cfg.AccessCodeLength,
		PasswordLength:    cfg.PasswordLength,
		SchedulerInterval: cfg.SchedulerInterval,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	serviceManager.Scheduler().Start(schedulerCtx)

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, logger, cfg.JWTSecret, repo.User())

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handlers.SetupMiddleware(router, logger, cfg.CORSAllowedOrigins)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Stops the poller and waits for an in-flight tick
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	if mailQueue != nil {
		stopQueue()
		if err := mailQueue.Close(); err != nil {
			logger.Error("Failed to close mail queue", "error", err)
		}
	}

	if err := publisher.Close(); err != nil {
		logger.Error("Failed to close event publisher", "error", err)
	}

	// Closes the database pool and Redis
	if err := repoManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to close repositories", "error", err)
	}

	logger.Info("Server exited")
}
