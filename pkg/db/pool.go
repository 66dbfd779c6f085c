// Package db provides the Postgres side of the analytics backend: pooling via pgx,
// schema migrations and the Store that persists analytics operations.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// PoolLimits bounds the number of pooled connections. Zero fields use DefaultPoolLimits.
type PoolLimits struct {
	MaxConns int32
	MinConns int32
}

// DefaultPoolLimits are applied when a limit is left at zero.
var DefaultPoolLimits = PoolLimits{MaxConns: 20, MinConns: 2}

// NewPool creates a new pgx connection pool from the given database URL and verifies connectivity.
func NewPool(ctx context.Context, databaseURL string, limits PoolLimits) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL, limits)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established (max=%d min=%d)", logPrefix, config.MaxConns, config.MinConns))
	return pool, nil
}

// poolConfig parses databaseURL and applies limits. MinConns never exceeds MaxConns.
func poolConfig(databaseURL string, limits PoolLimits) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = DefaultPoolLimits.MaxConns
	if limits.MaxConns > 0 {
		config.MaxConns = limits.MaxConns
	}
	config.MinConns = DefaultPoolLimits.MinConns
	if limits.MinConns > 0 {
		config.MinConns = limits.MinConns
	}
	if config.MinConns > config.MaxConns {
		config.MinConns = config.MaxConns
	}
	return config, nil
}

// RunMigrations applies SQL migration files in order.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationFiles []string) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrationFiles)))

	for i, sql := range migrationFiles {
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%s - migration %d failed: %w", logPrefix, i+1, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// SchemaApplied reports whether the analytics schema exists.
func SchemaApplied(ctx context.Context, pool *pgxpool.Pool) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'analytics_events')`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s - failed to check schema: %w", logPrefix, err)
	}
	return exists, nil
}

// MigrationStatus prints whether migrations have been applied.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) error {
	const statusLogPrefix = "db:MigrationStatus"

	exists, err := SchemaApplied(ctx, pool)
	if err != nil {
		return err
	}

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	source := migrationPath
	if source == "" {
		source = "embedded migrations"
	}
	if exists {
		fmt.Printf("Migration status: applied (schema present, %d migration files in %s)\n", len(files), source)
	} else {
		fmt.Printf("Migration status: not applied (run 'bridge migrate up'). %d migration files in %s\n", len(files), source)
	}
	return nil
}
