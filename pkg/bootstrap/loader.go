package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/morezero/analytics-bridge/pkg/bridge"
)

const logPrefix = "bootstrap:loader"

// EnvBootstrapFile names the environment variable holding an explicit bootstrap path.
const EnvBootstrapFile = "BRIDGE_BOOTSTRAP_FILE"

// LoadBootstrapConfig loads bootstrap config from file paths or environment.
// It tries paths in order: first any paths passed in, then BRIDGE_BOOTSTRAP_FILE, then defaults.
// JSON and YAML (.yaml, .yml) files are accepted; a file that is missing, fails to parse
// or violates the bootstrap schema is skipped.
func LoadBootstrapConfig(paths ...string) (*Config, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvBootstrapFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/bridge.json", "config/bridge.yaml", "bridge.json", "bridge.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		cfg, err := parseConfig(data, detectConfigFormat(p))
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse bootstrap file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded bootstrap config from %s", logPrefix, p))
		return cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default bootstrap config", logPrefix))
	return GetDefaultBootstrapConfig(), nil
}

// GetDefaultBootstrapConfig returns the fallback configuration, which changes nothing.
func GetDefaultBootstrapConfig() *Config {
	return &Config{
		Name:        "analytics-bootstrap",
		Version:     "1.0.0",
		Description: "No startup defaults",
	}
}

// MergeBootstrapConfigs merges an override config into a base config.
func MergeBootstrapConfigs(base, override *Config) *Config {
	merged := *base

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.CollectionEnabled != nil {
		merged.CollectionEnabled = override.CollectionEnabled
	}
	if override.MinimumSessionMs != nil {
		merged.MinimumSessionMs = override.MinimumSessionMs
	}
	if override.SessionTimeoutMs != nil {
		merged.SessionTimeoutMs = override.SessionTimeoutMs
	}

	merged.UserProperties = make(map[string]string, len(base.UserProperties)+len(override.UserProperties))
	for name, value := range base.UserProperties {
		merged.UserProperties[name] = value
	}
	for name, value := range override.UserProperties {
		merged.UserProperties[name] = value
	}

	return &merged
}

// caller runs one call to completion.
type caller interface {
	Call(ctx context.Context, call *bridge.Call) (*bridge.Response, error)
}

// Apply replays the defaults through d in order and stops at the first failed call.
func Apply(ctx context.Context, d caller, cfg *Config) error {
	for _, call := range cfg.Calls() {
		resp, err := d.Call(ctx, call)
		if err != nil {
			return fmt.Errorf("%s - %s: %w", logPrefix, call.Method, err)
		}
		if resp.NotImplemented {
			return fmt.Errorf("%s - %s: not implemented", logPrefix, call.Method)
		}
		if !resp.Ok {
			return fmt.Errorf("%s - %s failed: %s: %s", logPrefix, call.Method, resp.Code, resp.Message)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", logPrefix, call.Method))
	}
	return nil
}
