// Package repositories selects the storage backend named by STORAGE_DRIVER.
package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"messenger-service/internal/chat"
	"messenger-service/internal/config"
	"messenger-service/internal/database"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories/badgerstore"
	"messenger-service/internal/repositories/sqlstore"
)

// UserStore is the account side of a backend
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type Backend struct {
	Store chat.Store
	Users UserStore
	close func() error
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects the configured backend. Relational schemas are migrated when migrate is set.
func Open(cfg *config.Config, migrate bool, log *slog.Logger) (*Backend, error) {
	if cfg.Database.Driver == "badger" {
		store, err := badgerstore.Open(cfg.Database.BadgerPath, cfg.Chat.LogCap, log)
		if err != nil {
			return nil, err
		}
		log.Info("Badger store opened", "path", cfg.Database.BadgerPath)
		return &Backend{Store: store, Users: store.Users, close: store.Close}, nil
	}

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}

	store := sqlstore.New(db, cfg.Chat.LogCap)
	return &Backend{Store: store, Users: store.Users, close: sqlDB.Close}, nil
}
