// Package store wires up the Postgres connection pool and schema
// migrations dixcover's components share.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/tbckr/dixcover/internal/config"
)

// DB wraps a *sqlx.DB built on top of a pgx connection pool. Components
// never share a single *sqlx.Conn across goroutines: every task acquires
// its own via Connx and releases it with defer conn.Close() on every exit
// path, including panic-recovery paths.
type DB struct {
	*sqlx.DB
}

// Open builds a pgx-backed connection pool and wraps it for sqlx use.
func Open(ctx context.Context, cfg *config.Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening connection pool: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	dbx := sqlx.NewDb(sqlDB, "pgx")
	if err := dbx.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{DB: dbx}, nil
}

// Conn acquires a dedicated connection for one task. Callers must close it
// on every exit path.
func (d *DB) Conn(ctx context.Context) (*sqlx.Conn, error) {
	return d.Connx(ctx)
}
