// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/OCAP2/battlesim/internal/config"
	"github.com/OCAP2/battlesim/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/battlesim/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, log), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "postgres":
		return nil, fmt.Errorf("postgres backend not supported: battles are not persisted across sessions")
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
