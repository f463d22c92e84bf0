package repositories

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/desertthunder/leadsync/internal/shared"
)

// Open builds a [SnapshotRepository] from the storage configuration.
func Open(cfg shared.StorageConfig) (*SnapshotRepository, error) {
	kv, err := OpenKV(cfg)
	if err != nil {
		return nil, err
	}
	return NewSnapshotRepository(kv), nil
}

// OpenKV selects and opens a [KVStore] backend from cfg.DSN.
//
// Recognized forms:
//
//	sqlite://path.db   path.db          SQLite through the embedded migrations
//	postgres://...     postgresql://... PostgreSQL
//	file://path.json   path.json        JSON document
//	memory://                           process-local map
func OpenKV(cfg shared.StorageConfig) (KVStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty storage dsn", shared.ErrInvalidConfig)
	}

	scheme, rest, found := strings.Cut(dsn, "://")
	if !found {
		scheme, rest = "", dsn
	}

	switch strings.ToLower(scheme) {
	case "":
		if strings.EqualFold(filepath.Ext(rest), ".json") {
			return NewFileKV(rest), nil
		}
		return OpenSQLiteKV(rest, cfg.MaxOpenConns, cfg.MaxIdleConns)
	case "sqlite", "sqlite3":
		if rest == "" {
			return nil, fmt.Errorf("%w: sqlite dsn needs a path", shared.ErrInvalidConfig)
		}
		return OpenSQLiteKV(rest, cfg.MaxOpenConns, cfg.MaxIdleConns)
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("%w: file dsn needs a path", shared.ErrInvalidConfig)
		}
		return NewFileKV(rest), nil
	case "memory", "mem", "inmem":
		return NewMemoryKV(), nil
	case "postgres", "postgresql":
		return NewPostgresKV(dsn)
	default:
		return nil, fmt.Errorf("%w: %s", shared.ErrUnsupportedBackend, scheme)
	}
}
