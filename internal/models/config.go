// Package models defines the configuration structures shared across the
// concord client: credentials and intents, REST scheduling knobs, gateway
// session tuning, logging, and observability. Configuration is hierarchical,
// YAML-serializable, and validated as a whole before the client starts.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure for a concord client process.
type Config struct {
	Client        ClientConfig        `yaml:"client" json:"client"`               // Credentials and gateway intents
	API           APIConfig           `yaml:"api" json:"api"`                     // REST endpoint and retry policy
	Gateway       GatewayConfig       `yaml:"gateway" json:"gateway"`             // Session and heartbeat tuning
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Structured logging output
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Prometheus metrics endpoint
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
	Status        StatusConfig        `yaml:"status" json:"status"`               // Local status HTTP server
}

// ClientConfig carries the bot credentials and the gateway intents bitmask.
type ClientConfig struct {
	Token      string `yaml:"token" json:"token"`
	Intents    int    `yaml:"intents" json:"intents"`
	ShardID    int    `yaml:"shard_id" json:"shard_id"`
	ShardCount int    `yaml:"shard_count" json:"shard_count"`
}

// APIConfig controls the REST layer: base URL, API version, and how the
// rate-limit scheduler retries throttled or failed requests.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	Version        int           `yaml:"version" json:"version"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	GlobalLimit    int           `yaml:"global_limit" json:"global_limit"`   // requests per global window
	GlobalWindow   time.Duration `yaml:"global_window" json:"global_window"` // global quota window
}

// GatewayConfig controls the websocket session: an optional URL override for
// testing, handshake timeout, and the outbound command budget the server
// enforces per connection.
type GatewayConfig struct {
	URL              string        `yaml:"url" json:"url"` // overrides the URL from /gateway/bot when set
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	CommandLimit     int           `yaml:"command_limit" json:"command_limit"`   // commands per window, heartbeats exempt
	CommandWindow    time.Duration `yaml:"command_window" json:"command_window"` // command budget window
	LargeThreshold   int           `yaml:"large_threshold" json:"large_threshold"`
	MaxReconnectWait time.Duration `yaml:"max_reconnect_wait" json:"max_reconnect_wait"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

// ObservabilityConfig controls OpenTelemetry tracing.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

// TracingConfig selects the span exporter and sampling rate.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// StatusConfig controls the local HTTP server exposing health and session
// status for operators.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
}

// NewDefaultConfig returns a configuration with working defaults for
// everything except the token, which has no safe default and must be
// provided by file or environment.
//
// The REST retry budget of 5 attempts matches the server's guidance for
// throttled requests; the global quota of 50 requests per second and the
// gateway budget of 120 commands per minute mirror the service's published
// limits.
func NewDefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			ShardID:    0,
			ShardCount: 1,
		},
		API: APIConfig{
			BaseURL:        "https://discord.com/api",
			Version:        10,
			RequestTimeout: 30 * time.Second,
			MaxRetries:     5,
			GlobalLimit:    50,
			GlobalWindow:   time.Second,
		},
		Gateway: GatewayConfig{
			HandshakeTimeout: 30 * time.Second,
			CommandLimit:     120,
			CommandWindow:    time.Minute,
			LargeThreshold:   250,
			MaxReconnectWait: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "concord",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		Status: StatusConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8080,
		},
	}
}

// Validate checks the full configuration tree and returns the first problem
// found. It is called once at startup so misconfigurations fail fast.
func (c *Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("invalid api config: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("invalid gateway config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status config: %w", err)
	}
	return nil
}

func (cc *ClientConfig) Validate() error {
	if cc.Token == "" {
		return errors.New("token is required")
	}
	if cc.Intents < 0 {
		return errors.New("intents cannot be negative")
	}
	if cc.ShardCount < 1 {
		return errors.New("shard_count must be at least 1")
	}
	if cc.ShardID < 0 || cc.ShardID >= cc.ShardCount {
		return fmt.Errorf("shard_id must be in [0, %d)", cc.ShardCount)
	}
	return nil
}

func (ac *APIConfig) Validate() error {
	if ac.BaseURL == "" {
		return errors.New("base_url cannot be empty")
	}
	if !strings.HasPrefix(ac.BaseURL, "http://") && !strings.HasPrefix(ac.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL: %s", ac.BaseURL)
	}
	if ac.Version < 9 {
		return fmt.Errorf("unsupported API version: %d", ac.Version)
	}
	if ac.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if ac.MaxRetries < 1 {
		return errors.New("max_retries must be at least 1")
	}
	if ac.GlobalLimit < 1 {
		return errors.New("global_limit must be at least 1")
	}
	if ac.GlobalWindow <= 0 {
		return errors.New("global_window must be positive")
	}
	return nil
}

func (gc *GatewayConfig) Validate() error {
	if gc.URL != "" && !strings.HasPrefix(gc.URL, "ws://") && !strings.HasPrefix(gc.URL, "wss://") {
		return fmt.Errorf("gateway url must be a ws(s) URL: %s", gc.URL)
	}
	if gc.HandshakeTimeout <= 0 {
		return errors.New("handshake_timeout must be positive")
	}
	if gc.CommandLimit < 1 {
		return errors.New("command_limit must be at least 1")
	}
	if gc.CommandWindow <= 0 {
		return errors.New("command_window must be positive")
	}
	if gc.LargeThreshold < 50 || gc.LargeThreshold > 250 {
		return errors.New("large_threshold must be between 50 and 250")
	}
	if gc.MaxReconnectWait <= 0 {
		return errors.New("max_reconnect_wait must be positive")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	switch lc.Output {
	case "stdout", "stderr", "file":
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}
	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}
	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}
	if mc.Port < 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 0 and 65535")
	}
	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service_name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("otlp_endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample_rate must be between 0 and 1")
	}
	return nil
}

func (sc *StatusConfig) Validate() error {
	if !sc.Enabled {
		return nil
	}
	if sc.Port < 0 || sc.Port > 65535 {
		return errors.New("status port must be between 0 and 65535")
	}
	return nil
}
