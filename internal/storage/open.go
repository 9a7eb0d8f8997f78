package storage

import (
	"context"
	"fmt"

	"github.com/findosh/coinwatch/internal/config"
)

// Open returns the CredentialStore selected by cfg.StoreDriver
func Open(ctx context.Context, cfg *config.Config) (CredentialStore, error) {
	switch cfg.StoreDriver {
	case "memory":
		return NewMemoryStore(), nil

	case "sqlite", "":
		db, err := New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return NewUserRepository(db), nil

	case "leveldb":
		return OpenLevelStore(cfg.DatabaseURL)

	case "mongo":
		ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		return OpenMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
