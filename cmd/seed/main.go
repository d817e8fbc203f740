package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"messenger-service/internal/config"
	"messenger-service/internal/logging"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/services"
)

var demoUsers = []string{"alice", "bob", "charlie"}

const demoPassword = "123456"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	logger.Info("Starting database seeding...", "storage", cfg.Database.Driver)

	backend, err := repositories.Open(cfg, true, logger)
	if err != nil {
		logger.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	userService := services.NewUserService(backend.Users, services.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpirationTime), logger)

	ctx := context.Background()
	created := 0
	for _, username := range demoUsers {
		_, err := userService.Register(ctx, &models.RegisterRequest{Username: username, Password: demoPassword})
		switch {
		case err == nil:
			created++
			logger.Info("Created user", "username", username)
		case errors.Is(err, services.ErrUserAlreadyExists):
			logger.Info("User already exists, skipping", "username", username)
		default:
			logger.Error("Failed to create user", "username", username, "error", err)
			os.Exit(1)
		}
	}

	logger.Info("Database seeding completed", "created", created, "password", demoPassword)
}
