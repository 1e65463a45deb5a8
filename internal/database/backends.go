package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fenixctl/enroller/internal/config"
)

// Backends holds the optional external stores. A nil field means the
// corresponding in-process fallback is used.
type Backends struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

// Open connects to the stores the configuration asks for: PostgreSQL when
// preferences live there, Redis when REDIS_URL is set.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backends, error) {
	b := &Backends{}
	if cfg.PreferencesBackend == "postgres" {
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.MaxDBConns, log)
		if err != nil {
			return nil, err
		}
		b.Postgres = pool
	}
	if cfg.RedisURL != "" {
		rdb, err := NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Redis = rdb
	}
	return b, nil
}

// Close releases every open connection.
func (b *Backends) Close() {
	if b.Postgres != nil {
		b.Postgres.Close()
	}
	if b.Redis != nil {
		b.Redis.Close()
	}
}
