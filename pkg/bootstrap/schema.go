package bootstrap

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// configSchema constrains bootstrap files to what the analytics channel accepts.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string"},
    "version": {"type": "string"},
    "description": {"type": "string"},
    "collectionEnabled": {"type": "boolean"},
    "minimumSessionMs": {"type": "integer", "minimum": 0},
    "sessionTimeoutMs": {"type": "integer", "minimum": 0},
    "userProperties": {
      "type": "object",
      "propertyNames": {"pattern": "^[a-zA-Z][a-zA-Z0-9_]{0,23}$"},
      "additionalProperties": {"type": "string", "maxLength": 36}
    }
  }
}`

var schema = mustSchema(configSchema)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("%s - invalid bootstrap schema: %v", logPrefix, err))
	}
	return s
}

type configFormat int

const (
	configFormatJSON configFormat = iota
	configFormatYAML
)

// detectConfigFormat picks the parser from the file extension; anything but .yaml/.yml is JSON.
func detectConfigFormat(path string) configFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return configFormatYAML
	default:
		return configFormatJSON
	}
}

// parseConfig validates data against the bootstrap schema and decodes it.
func parseConfig(data []byte, format configFormat) (*Config, error) {
	var doc any
	var cfg Config
	switch format {
	case configFormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}
	return &cfg, nil
}

func validateDocument(doc any) error {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}
