package core

import (
	"context"
	"fmt"

	"stockroom/internal/config"
	"stockroom/internal/infra/persistence/memory"
	"stockroom/internal/infra/persistence/postgres"
	"stockroom/internal/infra/persistence/sqlite"
	"stockroom/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend from cfg. The returned close func
// releases database handles and is never nil on success.
func OpenPersistentStore(ctx context.Context, cfg config.Storage, engine *domain.RulesEngine) (domain.PersistentStore, func() error, error) {
	noop := func() error { return nil }
	switch StorageDriver(cfg.Driver) {
	case StorageMemory:
		return memory.NewStore(engine), noop, nil
	case StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
