package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool with conservative defaults.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenCredentialStore connects the backend selected by cfg.StoreDriver.
// The returned io.Closer releases the underlying connection.
func OpenCredentialStore(ctx context.Context, cfg Config) (CredentialStore, io.Closer, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect database: %w", err)
		}
		store, err := NewPgCredentialStore(pool, cfg.TableName)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, closerFunc(func() error { pool.Close(); return nil }), nil
	case "redis":
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		store, err := NewRedisCredentialStore(client, cfg.TableName)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil
	case "memory", "":
		return NewMemoryCredentialStore(), io.NopCloser(nil), nil
	default:
		return nil, nil, newError(KindConfig, "unsupported store driver", fmt.Errorf("driver %q", cfg.StoreDriver))
	}
}
