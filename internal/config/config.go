// Package config loads the concord configuration from an optional YAML file
// and environment variables. Environment variables take precedence over the
// file, which takes precedence over built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"concord/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment overrides configuration from CONCORD_* environment
// variables. The token is the one setting commonly supplied this way so that
// it never needs to live in a file.
func loadFromEnvironment(config *models.Config) {
	if token := os.Getenv("CONCORD_TOKEN"); token != "" {
		config.Client.Token = token
	}
	if intents := os.Getenv("CONCORD_INTENTS"); intents != "" {
		if i, err := strconv.Atoi(intents); err == nil {
			config.Client.Intents = i
		}
	}
	if shardID := os.Getenv("CONCORD_SHARD_ID"); shardID != "" {
		if i, err := strconv.Atoi(shardID); err == nil {
			config.Client.ShardID = i
		}
	}
	if shardCount := os.Getenv("CONCORD_SHARD_COUNT"); shardCount != "" {
		if i, err := strconv.Atoi(shardCount); err == nil {
			config.Client.ShardCount = i
		}
	}

	if baseURL := os.Getenv("CONCORD_API_BASE_URL"); baseURL != "" {
		config.API.BaseURL = baseURL
	}
	if timeout := os.Getenv("CONCORD_API_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.API.RequestTimeout = d
		}
	}
	if retries := os.Getenv("CONCORD_API_MAX_RETRIES"); retries != "" {
		if i, err := strconv.Atoi(retries); err == nil {
			config.API.MaxRetries = i
		}
	}

	if gwURL := os.Getenv("CONCORD_GATEWAY_URL"); gwURL != "" {
		config.Gateway.URL = gwURL
	}

	if level := os.Getenv("CONCORD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CONCORD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CONCORD_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}
	if filePath := os.Getenv("CONCORD_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	if enabled := os.Getenv("CONCORD_METRICS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Metrics.Enabled = b
		}
	}
	if port := os.Getenv("CONCORD_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	if enabled := os.Getenv("CONCORD_TRACING_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Observability.Tracing.Enabled = b
		}
	}
	if endpoint := os.Getenv("CONCORD_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
		config.Observability.Tracing.Exporter = "otlp"
	}
}
