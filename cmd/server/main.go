// @title           Messenger Service API
// @version         1.0
// @description     Real-time chat with broadcast and private messaging over WebSocket
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"messenger-service/internal/adapters/kafka"
	"messenger-service/internal/adapters/storage"
	"messenger-service/internal/api/handlers"
	"messenger-service/internal/api/middleware"
	"messenger-service/internal/api/routes"
	"messenger-service/internal/chat"
	"messenger-service/internal/config"
	"messenger-service/internal/database"
	"messenger-service/internal/logging"
	"messenger-service/internal/repositories"
	"messenger-service/internal/services"
	"messenger-service/internal/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting messenger server", "storage", cfg.Database.Driver)

	backend, err := repositories.Open(cfg, true, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var observers chat.Observers

	// Redis is optional: rate limiting and the presence mirror
	var limiter middleware.RateLimiter
	if cfg.Redis.URL != "" {
		redisClient, err := database.NewRedisConnection(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient.GetClient(), logger)
		if err := redisService.ResetPresence(ctx); err != nil {
			logger.Warn("Failed to reset presence mirror", "error", err)
		}
		go redisService.RunPresenceMirror(ctx)

		limiter = redisService
		observers = append(observers, redisService)
	}

	// Kafka is optional: chat event stream
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		publisher := kafka.NewEventPublisher(producer, cfg.Kafka.Topic, 0, logger)
		publisher.Start()
		// runs after hub.Stop, so no event is enqueued on a closed publisher
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error("Failed to close Kafka producer", "error", err)
			}
		}()
		observers = append(observers, publisher)
		logger.Info("Publishing chat events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// MinIO is optional: attachments
	var uploader handlers.Uploader
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := storage.NewMinIOClient(ctx, cfg.MinIO, logger)
		if err != nil {
			return err
		}
		uploader = minioClient
	}

	var observer chat.Observer = chat.NopObserver{}
	if len(observers) > 0 {
		observer = observers
	}

	presence := chat.NewRegistry()
	pending := chat.NewPendingStore(backend.Store, cfg.Chat.PendingCap, logger)
	router := chat.NewRouter(backend.Store, presence, pending, logger, chat.WithObserver(observer))
	controller := chat.NewController(backend.Store, presence, pending, router, logger,
		chat.WithSessionPolicy(chat.ParseSessionPolicy(cfg.Chat.SessionPolicy)),
		chat.WithPresenceObserver(observer),
	)

	hub := websocket.NewHub(controller, router, websocket.Options{
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		SendBuffer:     cfg.Chat.SendBuffer,
		PendingCap:     cfg.Chat.PendingCap,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger)
	go hub.Run()
	defer hub.Stop()

	jwtManager := services.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpirationTime)
	userService := services.NewUserService(backend.Users, jwtManager, logger)

	gin.SetMode(gin.ReleaseMode)
	api := routes.NewRouter(routes.Dependencies{
		Accounts:       userService,
		Tokens:         userService,
		History:        backend.Store,
		Presence:       controller,
		Stats:          hub,
		WS:             handlers.NewWSHandler(hub),
		Uploader:       uploader,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthLimit:      cfg.Redis.AuthLimit,
		WSLimit:        cfg.Redis.WSLimit,
		Logger:         logger,
	})
	api.SetupRoutes()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}
