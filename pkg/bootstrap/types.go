// Package bootstrap provides the startup defaults applied to the analytics channel
// before the bridge begins serving calls.
package bootstrap

import (
	"sort"

	"github.com/morezero/analytics-bridge/pkg/analytics"
	"github.com/morezero/analytics-bridge/pkg/bridge"
)

// Config is the root bootstrap configuration. Unset fields leave the stored settings untouched.
type Config struct {
	Name              string            `json:"name" yaml:"name"`
	Version           string            `json:"version" yaml:"version"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	CollectionEnabled *bool             `json:"collectionEnabled,omitempty" yaml:"collectionEnabled,omitempty"`
	MinimumSessionMs  *int64            `json:"minimumSessionMs,omitempty" yaml:"minimumSessionMs,omitempty"`
	SessionTimeoutMs  *int64            `json:"sessionTimeoutMs,omitempty" yaml:"sessionTimeoutMs,omitempty"`
	UserProperties    map[string]string `json:"userProperties,omitempty" yaml:"userProperties,omitempty"`
}

// IsEmpty reports whether applying the config would change nothing.
func (c *Config) IsEmpty() bool {
	return c.CollectionEnabled == nil && c.MinimumSessionMs == nil && c.SessionTimeoutMs == nil && len(c.UserProperties) == 0
}

// Calls converts the defaults into analytics calls. Call ids are derived from the
// config name so the startup replies are easy to find in logs.
func (c *Config) Calls() []*bridge.Call {
	var calls []*bridge.Call
	add := func(method string, args map[string]any) {
		calls = append(calls, &bridge.Call{
			ID:        c.Name + ":" + method,
			Method:    method,
			Arguments: args,
		})
	}

	if c.CollectionEnabled != nil {
		add(analytics.MethodSetAnalyticsCollectionEnabled, map[string]any{"enabled": *c.CollectionEnabled})
	}
	if c.MinimumSessionMs != nil {
		add(analytics.MethodSetMinimumSessionDuration, map[string]any{"milliseconds": *c.MinimumSessionMs})
	}
	if c.SessionTimeoutMs != nil {
		add(analytics.MethodSetSessionTimeoutDuration, map[string]any{"milliseconds": *c.SessionTimeoutMs})
	}
	if len(c.UserProperties) > 0 {
		names := make([]string, 0, len(c.UserProperties))
		for name := range c.UserProperties {
			names = append(names, name)
		}
		sort.Strings(names)
		props := make(map[string]any, len(names))
		for _, name := range names {
			props[name] = c.UserProperties[name]
		}
		add(analytics.MethodSetUserProperties, map[string]any{"properties": props})
	}
	return calls
}
