package store

import (
	"context"
	"fmt"
)

// BackendConfig selects the medium a Store is opened over.
type BackendConfig struct {
	Backend     string // sqlite, postgres, redis or memory
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
}

// OpenMedium connects the configured medium.
func OpenMedium(ctx context.Context, cfg BackendConfig) (Medium, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "redis":
		m := NewRedisMedium(NewRedisClient(cfg.RedisAddr), cfg.RedisPrefix)
		if err := m.Ping(ctx); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return m, nil
	case "memory":
		return NewMemoryMedium(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
