package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/fetchkit/errors"
)

// configSchema is the JSON schema every configuration file must satisfy
// before unmarshaling. Range checks beyond structural validation live in
// Config.Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["base_url"],
  "properties": {
    "version": {"type": "string"},
    "base_url": {"type": "string", "minLength": 1},
    "cache_ttl_ms": {"type": "integer", "minimum": 0},
    "cache_sweep_interval_ms": {"type": "integer", "minimum": 0},
    "max_retries": {"type": "integer", "minimum": 0, "maximum": 10},
    "retry_delay_ms": {"type": "integer", "minimum": 0},
    "request_timeout_ms": {"type": "integer", "minimum": 0, "maximum": 300000},
    "max_concurrent_requests": {"type": "integer", "minimum": 0, "maximum": 1000},
    "headers": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "rate_limit": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "requests_per_second": {"type": "number", "minimum": 0},
        "burst": {"type": "integer", "minimum": 0}
      }
    },
    "metrics": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "path": {"type": "string"}
      }
    },
    "tls": {"type": "object"}
  },
  "additionalProperties": false
}`

// Loader loads and validates configuration files.
type Loader struct {
	schema *gojsonschema.Schema
}

// NewLoader creates a configuration loader with the embedded schema compiled.
func NewLoader() *Loader {
	// The embedded schema is a compile-time constant; a failure to compile
	// it is a programming error.
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(configSchema))
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded schema: %v", err))
	}
	return &Loader{schema: schema}
}

// LoadFile reads a JSON or YAML configuration file, validates it against the
// schema, applies defaults, and range-checks the result.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "LoadFile", fmt.Sprintf("read %s", path))
	}

	jsonData := data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		jsonData, err = yamlToJSON(data)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "LoadFile", "convert YAML to JSON")
		}
	}

	return l.LoadJSON(jsonData)
}

// LoadJSON validates raw JSON configuration bytes and unmarshals them.
func (l *Loader) LoadJSON(data []byte) (*Config, error) {
	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadJSON", "schema validation")
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, errors.WrapInvalid(
			fmt.Errorf("%s", strings.Join(details, "; ")),
			"Loader", "LoadJSON", "schema validation")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadJSON", "unmarshal config")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// yamlToJSON converts a YAML document to its JSON representation so the same
// schema applies to both formats.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(normalizeYAML(doc))
}

// normalizeYAML rewrites map[any]any trees (produced by some YAML inputs)
// into map[string]any so they marshal to JSON.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(item)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = normalizeYAML(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = normalizeYAML(item)
		}
		return s
	default:
		return v
	}
}
