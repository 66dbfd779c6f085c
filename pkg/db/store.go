package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/analytics-bridge/pkg/bridge"
)

const storeLogPrefix = "db:store"

// CodeStorage categorizes failures of the Postgres backend.
const CodeStorage = "storage"

// Store persists analytics operations in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func storageError(op string, err error) error {
	return bridge.NewOperationError(CodeStorage, fmt.Errorf("%s - %s failed: %w", storeLogPrefix, op, err))
}

// LogEvent records an event stamped with the current user and screen. While collection
// is disabled the event is dropped without error.
func (s *Store) LogEvent(ctx context.Context, name string, params bridge.Bag) error {
	payload := []byte("{}")
	if params != nil {
		var err error
		if payload, err = json.Marshal(params); err != nil {
			return storageError("encode event params", err)
		}
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO analytics_events (name, params, user_id, screen_name)
		 SELECT $1, $2::jsonb, s.user_id, s.screen_name
		 FROM analytics_settings s
		 WHERE s.id = 1 AND s.collection_enabled`,
		name, string(payload))
	if err != nil {
		return storageError("log event", err)
	}
	if tag.RowsAffected() == 0 {
		slog.Debug(fmt.Sprintf("%s - collection disabled, dropped event %s", storeLogPrefix, name))
		return nil
	}
	slog.Debug(fmt.Sprintf("%s - LogEvent name=%s params=%d", storeLogPrefix, name, len(params)))
	return nil
}

// SetCollectionEnabled toggles event collection.
func (s *Store) SetCollectionEnabled(ctx context.Context, enabled bool) error {
	return s.updateSettings(ctx, "set collection enabled", `collection_enabled = $1`, enabled)
}

// SetCurrentScreen records the screen new events are attributed to.
func (s *Store) SetCurrentScreen(ctx context.Context, screenName string, screenClassOverride *string) error {
	return s.updateSettings(ctx, "set current screen", `screen_name = $1, screen_class = $2`, screenName, screenClassOverride)
}

// SetMinimumSessionDuration stores the minimum engagement time before a session starts.
func (s *Store) SetMinimumSessionDuration(ctx context.Context, d time.Duration) error {
	return s.updateSettings(ctx, "set minimum session duration", `min_session_ms = $1`, d.Milliseconds())
}

// SetSessionTimeoutDuration stores the inactivity time after which a session ends.
func (s *Store) SetSessionTimeoutDuration(ctx context.Context, d time.Duration) error {
	return s.updateSettings(ctx, "set session timeout duration", `session_timeout_ms = $1`, d.Milliseconds())
}

// SetUserID sets or, with nil, clears the user id.
func (s *Store) SetUserID(ctx context.Context, id *string) error {
	return s.updateSettings(ctx, "set user id", `user_id = $1`, id)
}

func (s *Store) updateSettings(ctx context.Context, op, assignments string, args ...any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE analytics_settings SET `+assignments+`, modified = now() WHERE id = 1`, args...)
	if err != nil {
		return storageError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return storageError(op, fmt.Errorf("settings row missing (run 'bridge migrate up')"))
	}
	return nil
}

// SetUserProperty sets or, with nil, clears one user property.
func (s *Store) SetUserProperty(ctx context.Context, name string, value *string) error {
	if _, err := upsertUserProperty(ctx, s.pool, name, value); err != nil {
		return storageError("set user property", err)
	}
	return nil
}

// SetUserProperties applies all properties in one transaction.
func (s *Store) SetUserProperties(ctx context.Context, properties map[string]*string) error {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, name := range names {
			if _, err := upsertUserProperty(ctx, tx, name, properties[name]); err != nil {
				return fmt.Errorf("property %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return storageError("set user properties", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertUserProperty(ctx context.Context, q execer, name string, value *string) (pgconn.CommandTag, error) {
	return q.Exec(ctx,
		`INSERT INTO user_properties (name, value, modified)
		 VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, modified = EXCLUDED.modified`,
		name, value)
}

// ResetAnalyticsData deletes collected events, user properties and the user id.
func (s *Store) ResetAnalyticsData(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM analytics_events`); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_properties`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE analytics_settings SET user_id = NULL, modified = now() WHERE id = 1`)
		return err
	})
	if err != nil {
		return storageError("reset analytics data", err)
	}
	slog.Info(fmt.Sprintf("%s - Analytics data reset", storeLogPrefix))
	return nil
}

// Settings returns the current settings row.
func (s *Store) Settings(ctx context.Context) (*Settings, error) {
	var st Settings
	err := s.pool.QueryRow(ctx,
		`SELECT collection_enabled, min_session_ms, session_timeout_ms, user_id, screen_name, screen_class, modified
		 FROM analytics_settings WHERE id = 1`).
		Scan(&st.CollectionEnabled, &st.MinSessionMs, &st.SessionTimeoutMs, &st.UserID, &st.ScreenName, &st.ScreenClass, &st.Modified)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read settings: %w", storeLogPrefix, err)
	}
	return &st, nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name, params, user_id, screen_name, created
		 FROM analytics_events ORDER BY created DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query events: %w", storeLogPrefix, err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Event, error) {
		var e Event
		var params []byte
		err := row.Scan(&e.ID, &e.Name, &params, &e.UserID, &e.ScreenName, &e.Created)
		e.Params = json.RawMessage(params)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan events: %w", storeLogPrefix, err)
	}
	return events, nil
}

// UserProperties returns all user properties ordered by name.
func (s *Store) UserProperties(ctx context.Context) ([]UserProperty, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value, modified FROM user_properties ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to query user properties: %w", storeLogPrefix, err)
	}
	props, err := pgx.CollectRows(rows, pgx.RowToStructByPos[UserProperty])
	if err != nil {
		return nil, fmt.Errorf("%s - failed to scan user properties: %w", storeLogPrefix, err)
	}
	return props, nil
}
