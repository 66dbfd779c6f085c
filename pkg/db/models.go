package db

import (
	"encoding/json"
	"time"
)

// Settings is the singleton row of the analytics_settings table.
type Settings struct {
	CollectionEnabled bool      `json:"collection_enabled"`
	MinSessionMs      int64     `json:"min_session_ms"`
	SessionTimeoutMs  int64     `json:"session_timeout_ms"`
	UserID            *string   `json:"user_id,omitempty"`
	ScreenName        *string   `json:"screen_name,omitempty"`
	ScreenClass       *string   `json:"screen_class,omitempty"`
	Modified          time.Time `json:"modified"`
}

// Event represents a row in the analytics_events table.
type Event struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Params     json.RawMessage `json:"params,omitempty"`
	UserID     *string         `json:"user_id,omitempty"`
	ScreenName *string         `json:"screen_name,omitempty"`
	Created    time.Time       `json:"created"`
}

// UserProperty represents a row in the user_properties table. A nil Value means cleared.
type UserProperty struct {
	Name     string    `json:"name"`
	Value    *string   `json:"value,omitempty"`
	Modified time.Time `json:"modified"`
}
