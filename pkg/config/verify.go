package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema validates the config against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	// parse schema
	var schema struct {
		Defs map[string]struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"$defs"`
	}
	if err := json.Unmarshal([]byte(embeddedSchema), &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}
	root, ok := schema.Defs["Config"]
	if !ok {
		return fmt.Errorf("embedded schema has no Config definition")
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	// every section of the config must be described by the schema
	var missing []string
	for section := range configMap {
		if _, ok := root.Properties[section]; !ok {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("sections not in schema: %s", strings.Join(missing, ", "))
	}

	// basic validation - check required fields match
	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// validateRequiredFields performs basic validation of required fields
func validateRequiredFields(cfg *Config) error {
	// check server config
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.Timeout == 0 {
		return fmt.Errorf("server.timeout is required")
	}

	// check database config
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	// check redis url when redis is used
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache backend is redis")
	}
	if cfg.RateLimit.Backend == "redis" && cfg.RateLimit.RedisURL == "" {
		return fmt.Errorf("rate_limit.redis_url is required when rate_limit backend is redis")
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&Config{}), nil
}
