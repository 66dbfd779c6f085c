package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearAnalytics removes all collected events and user properties and restores the
// settings row to its defaults. Schema is preserved.
func ClearAnalytics(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing analytics tables", clearLogPrefix))

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `TRUNCATE TABLE analytics_events, user_properties`); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM analytics_settings`); err != nil {
			return fmt.Errorf("delete settings: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO analytics_settings (id) VALUES (1)`); err != nil {
			return fmt.Errorf("reset settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s - clear failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Analytics data cleared", clearLogPrefix))
	return nil
}
