// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Liveness error policies accepted in LIVENESS_CHECK_ERROR_POLICY.
const (
	LivenessFailOpen   = "fail_open"
	LivenessFailClosed = "fail_closed"
)

const defaultTokenTTL = 6 * time.Hour

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :3001).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN holding bi_sessions and the Hub-replicated user_sessions table.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// SSOEnabled toggles POST /sso/validate and is reported by GET /sso/status.
	SSOEnabled bool `mapstructure:"SSO_ENABLED"`
	// SSOService is the fixed service identifier sent to the Hub with every validation.
	SSOService string `mapstructure:"SSO_SERVICE"`
	// HubURL is the Hub base URL (e.g. http://localhost:3000).
	HubURL string `mapstructure:"HUB_URL"`
	// HubValidateTimeout bounds a token validation call (e.g. "10s").
	HubValidateTimeout string `mapstructure:"HUB_VALIDATE_TIMEOUT"`
	// HubHealthTimeout bounds the health probe (e.g. "5s").
	HubHealthTimeout string `mapstructure:"HUB_HEALTH_TIMEOUT"`
	// HubValidateMaxAttempts is the number of attempts on transport failures. Timeouts are never retried.
	HubValidateMaxAttempts int `mapstructure:"HUB_VALIDATE_MAX_ATTEMPTS"`
	// HubWebhookSecret authenticates Hub logout notifications. Empty disables POST /sso/hub-logout.
	HubWebhookSecret string `mapstructure:"HUB_WEBHOOK_SECRET"`

	// JWTSecret is the HMAC-SHA256 secret for local BI tokens.
	JWTSecret string `mapstructure:"BI_JWT_SECRET"`
	// JWTExpiresIn is the token lifetime in the \d+[smhd] form (e.g. "6h", "1d").
	JWTExpiresIn string `mapstructure:"BI_JWT_EXPIRES_IN"`
	// JWTIssuer is the iss claim.
	JWTIssuer string `mapstructure:"BI_JWT_ISSUER"`
	// JWTAudience is the aud claim.
	JWTAudience string `mapstructure:"BI_JWT_AUDIENCE"`

	// InactivityTimeout is the inactivity window applied to Hub liveness and local activity (e.g. "60m").
	InactivityTimeout string `mapstructure:"SESSION_INACTIVITY_TIMEOUT"`
	// HubRecheckInterval is how often the auth gate re-validates Hub liveness per session (e.g. "2m").
	HubRecheckInterval string `mapstructure:"HUB_RECHECK_INTERVAL"`
	// LivenessErrorPolicy is fail_open or fail_closed; applies when the liveness check itself errors.
	LivenessErrorPolicy string `mapstructure:"LIVENESS_CHECK_ERROR_POLICY"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty means no-op telemetry.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel resource service name.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for session events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
	// KafkaGroupID is the consumer group ID for the session-events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the worker-only Loki base URL (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// DatasetQueryTimeout bounds a dataset validation (e.g. "30s").
	DatasetQueryTimeout string `mapstructure:"DATASET_QUERY_TIMEOUT"`
	// DatasetPreviewLimit bounds the preview rows returned by dataset validation (1-100).
	DatasetPreviewLimit int `mapstructure:"DATASET_PREVIEW_LIMIT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SSO_ENABLED", true)
	v.SetDefault("SSO_SERVICE", "sqabi")
	v.SetDefault("HUB_URL", "http://localhost:3000")
	v.SetDefault("HUB_VALIDATE_TIMEOUT", "10s")
	v.SetDefault("HUB_HEALTH_TIMEOUT", "5s")
	v.SetDefault("HUB_VALIDATE_MAX_ATTEMPTS", 2)
	v.SetDefault("HUB_WEBHOOK_SECRET", "")
	v.SetDefault("BI_JWT_SECRET", "")
	v.SetDefault("BI_JWT_EXPIRES_IN", "6h")
	v.SetDefault("BI_JWT_ISSUER", "sqabi")
	v.SetDefault("BI_JWT_AUDIENCE", "sqabi-users")
	v.SetDefault("SESSION_INACTIVITY_TIMEOUT", "60m")
	v.SetDefault("HUB_RECHECK_INTERVAL", "2m")
	v.SetDefault("LIVENESS_CHECK_ERROR_POLICY", LivenessFailOpen)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "sqabi-backend")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "sqabi-session-events")
	v.SetDefault("KAFKA_GROUP_ID", "sqabi-session-events-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("DATASET_QUERY_TIMEOUT", "30s")
	v.SetDefault("DATASET_PREVIEW_LIMIT", 10)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.SSOEnabled && strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("config: BI_JWT_SECRET must be set when SSO_ENABLED=true")
	}
	if cfg.SSOEnabled && strings.TrimSpace(cfg.HubURL) == "" {
		return nil, errors.New("config: HUB_URL must be set when SSO_ENABLED=true")
	}
	cfg.HubURL = strings.TrimSuffix(strings.TrimSpace(cfg.HubURL), "/")

	cfg.LivenessErrorPolicy = strings.ToLower(strings.TrimSpace(cfg.LivenessErrorPolicy))
	if cfg.LivenessErrorPolicy == "" {
		cfg.LivenessErrorPolicy = LivenessFailOpen
	}
	if cfg.LivenessErrorPolicy != LivenessFailOpen && cfg.LivenessErrorPolicy != LivenessFailClosed {
		return nil, errors.New("config: LIVENESS_CHECK_ERROR_POLICY must be fail_open or fail_closed")
	}

	if cfg.HubValidateMaxAttempts <= 0 {
		cfg.HubValidateMaxAttempts = 1
	}
	if cfg.DatasetPreviewLimit <= 0 {
		cfg.DatasetPreviewLimit = 10
	}
	if cfg.DatasetPreviewLimit > 100 {
		return nil, errors.New("config: DATASET_PREVIEW_LIMIT must be between 1 and 100")
	}

	return &cfg, nil
}

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry parses the \d+[smhd] expiry form used by BI_JWT_EXPIRES_IN.
// Returns 6h when s does not match or yields a non-positive duration.
func ParseExpiry(s string) time.Duration {
	m := expiryPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return defaultTokenTTL
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return defaultTokenTTL
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit
}

// TokenTTL returns the parsed BI_JWT_EXPIRES_IN. Returns 6h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	return ParseExpiry(c.JWTExpiresIn)
}

// ValidateTimeout parses HubValidateTimeout. Returns 10s if unset or invalid.
func (c *Config) ValidateTimeout() time.Duration {
	return parseDuration(c.HubValidateTimeout, 10*time.Second)
}

// HealthTimeout parses HubHealthTimeout. Returns 5s if unset or invalid.
func (c *Config) HealthTimeout() time.Duration {
	return parseDuration(c.HubHealthTimeout, 5*time.Second)
}

// Inactivity parses InactivityTimeout. Returns 60m if unset or invalid.
func (c *Config) Inactivity() time.Duration {
	return parseDuration(c.InactivityTimeout, 60*time.Minute)
}

// RecheckInterval parses HubRecheckInterval. Returns 2m if unset or invalid.
func (c *Config) RecheckInterval() time.Duration {
	return parseDuration(c.HubRecheckInterval, 2*time.Minute)
}

// DatasetTimeout parses DatasetQueryTimeout. Returns 30s if unset or invalid.
func (c *Config) DatasetTimeout() time.Duration {
	return parseDuration(c.DatasetQueryTimeout, 30*time.Second)
}

// FailClosed reports whether liveness check errors must reject the request.
func (c *Config) FailClosed() bool {
	return c.LivenessErrorPolicy == LivenessFailClosed
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the Kafka event producer is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
