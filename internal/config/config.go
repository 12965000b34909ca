package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/floradistro/pos-checkout/pkg/config"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CHECKOUT_HTTP_PORT" envDefault:"8080"`

	// Store identity stamped on every commit. The register ID is unique
	// per till and doubles as the telemetry aggregate key.
	VendorID   string `env:"VENDOR_ID" envDefault:"flora"`
	LocationID string `env:"LOCATION_ID" envDefault:"loc-dev"`
	RegisterID string `env:"REGISTER_ID" envDefault:"reg-dev"`

	// Upstream services
	CommitServiceURL string `env:"COMMIT_SERVICE_URL" envDefault:"http://localhost:8003"`
	AuthServiceURL   string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:8001"`

	// CommitTimeoutSeconds bounds the remote commit call. The remote
	// side performs an atomic multi-table transaction, so this is
	// deliberately generous.
	CommitTimeoutSeconds int `env:"COMMIT_TIMEOUT_SECONDS" envDefault:"90"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Circuit breaker settings for the commit call
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RegisterID == "" {
		return fmt.Errorf("REGISTER_ID is required")
	}
	if c.CommitTimeoutSeconds < 1 {
		return fmt.Errorf("COMMIT_TIMEOUT_SECONDS must be positive, got %d", c.CommitTimeoutSeconds)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for name, rawURL := range map[string]string{
		"COMMIT_SERVICE_URL": c.CommitServiceURL,
		"AUTH_SERVICE_URL":   c.AuthServiceURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// CommitTimeout returns the remote commit deadline as a duration.
func (c *Config) CommitTimeout() time.Duration {
	return time.Duration(c.CommitTimeoutSeconds) * time.Second
}
