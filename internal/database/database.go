// Package database opens the pgx pool shared by every repository.
package database

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courier-chat/courier/internal/config"
)

// Connect builds a DSN from cfg, opens a pool and verifies connectivity
// before anything takes a dependency on it. The pool is closed if the
// ping fails.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// DSN renders cfg as a postgres:// URL. Credentials are URL-escaped so
// passwords with reserved characters survive the round trip.
func DSN(cfg *config.Config) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		Host:     cfg.DBHost + ":" + cfg.DBPort,
		Path:     cfg.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
