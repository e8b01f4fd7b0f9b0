// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the apexd host process.
// The core components (ledger, verifier, pricing, hooks, dispatcher) never
// read the environment directly — they are constructed from this struct.
type Config struct {
	// Environment and logging
	Env      string // "development", "staging", "production"
	LogLevel string

	Transport  string // "stdio", "tcp", "ws"
	ListenAddr string // required for tcp/ws

	// Ledger persistence
	LedgerPath          string
	InitialAgentBalance string
	InitialBankBalance  string
	DebtCeilingDefault  string

	// Postgres mirror (optional secondary durable copy, not authoritative)
	MirrorDatabaseURL string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	// Dispatcher framing and backpressure
	RequestTTLSeconds          int
	TimeoutSweepIntervalSecs   int
	MaxMessageSizeBytes        int
	BufferSizeBytes            int
	BackpressureThresholdRatio float64

	// Pricing / policy
	TokenTaxRate float64

	// Hook manifest
	HookManifestPath string

	// Persona records (declared, schema-validated agent identity/policy)
	PersonaDir string

	// Diagnostics HTTP server (metrics + health), separate from the
	// dispatcher's own transport
	MetricsListenAddr string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration

	// Observability
	OTLPEndpoint string // OpenTelemetry collector endpoint, empty = disabled
}

// Defaults mirror the environment inputs laid out in the control plane's
// external interface contract.
const (
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultTransport = "stdio"

	DefaultLedgerPath          = "./data/ledger"
	DefaultInitialAgentBalance = "100.00"
	DefaultInitialBankBalance  = "10000.00"
	DefaultDebtCeilingDefault  = "-100.00"

	DefaultDBMaxOpenConns    = 10
	DefaultDBMaxIdleConns    = 2
	DefaultDBConnMaxLifetime = 5 * time.Minute
	DefaultDBConnMaxIdleTime = 3 * time.Minute

	DefaultRequestTTLSeconds          = 60
	DefaultTimeoutSweepIntervalSecs   = 5
	DefaultMaxMessageSizeBytes        = 512 * 1024
	DefaultBufferSizeBytes            = 2 * 1024 * 1024
	DefaultBackpressureThresholdRatio = 0.90

	DefaultTokenTaxRate = 0.01

	DefaultHookManifestPath = "./hooks.manifest.json"
	DefaultPersonaDir       = "./personas"

	DefaultMetricsListenAddr = ":9090"
	DefaultHTTPReadTimeout   = 10 * time.Second
	DefaultHTTPWriteTimeout  = 60 * time.Second
	DefaultHTTPIdleTimeout   = 60 * time.Second
)

// Load reads configuration from environment variables. It loads a .env
// file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", DefaultEnv),
		LogLevel: getEnv("LOG_LEVEL", DefaultLogLevel),

		Transport:  getEnv("TRANSPORT", DefaultTransport),
		ListenAddr: os.Getenv("LISTEN_ADDR"),

		LedgerPath:          getEnv("LEDGER_PATH", DefaultLedgerPath),
		InitialAgentBalance: getEnv("INITIAL_AGENT_BALANCE", DefaultInitialAgentBalance),
		InitialBankBalance:  getEnv("INITIAL_BANK_BALANCE", DefaultInitialBankBalance),
		DebtCeilingDefault:  getEnv("DEBT_CEILING_DEFAULT", DefaultDebtCeilingDefault),

		MirrorDatabaseURL: os.Getenv("MIRROR_DATABASE_URL"),
		DBMaxOpenConns:    int(getEnvInt64("POSTGRES_MAX_OPEN_CONNS", int64(DefaultDBMaxOpenConns))),
		DBMaxIdleConns:    int(getEnvInt64("POSTGRES_MAX_IDLE_CONNS", int64(DefaultDBMaxIdleConns))),
		DBConnMaxLifetime: getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", DefaultDBConnMaxLifetime),
		DBConnMaxIdleTime: getEnvDuration("POSTGRES_CONN_MAX_IDLE_TIME", DefaultDBConnMaxIdleTime),

		RequestTTLSeconds:          int(getEnvInt64("REQUEST_TTL_SECONDS", DefaultRequestTTLSeconds)),
		TimeoutSweepIntervalSecs:   int(getEnvInt64("TIMEOUT_SWEEP_INTERVAL_SECONDS", DefaultTimeoutSweepIntervalSecs)),
		MaxMessageSizeBytes:        int(getEnvInt64("MAX_MESSAGE_SIZE_BYTES", DefaultMaxMessageSizeBytes)),
		BufferSizeBytes:            int(getEnvInt64("BUFFER_SIZE_BYTES", DefaultBufferSizeBytes)),
		BackpressureThresholdRatio: getEnvFloat("BACKPRESSURE_THRESHOLD_RATIO", DefaultBackpressureThresholdRatio),

		TokenTaxRate: getEnvFloat("TOKEN_TAX_RATE", DefaultTokenTaxRate),

		HookManifestPath: getEnv("HOOK_MANIFEST_PATH", DefaultHookManifestPath),
		PersonaDir:       getEnv("PERSONA_DIR", DefaultPersonaDir),

		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", DefaultMetricsListenAddr),
		HTTPReadTimeout:   getEnvDuration("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout),
		HTTPWriteTimeout:  getEnvDuration("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout),
		HTTPIdleTimeout:   getEnvDuration("HTTP_IDLE_TIMEOUT", DefaultHTTPIdleTimeout),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.LedgerPath == "" {
		return fmt.Errorf("LEDGER_PATH is required")
	}

	switch c.Transport {
	case "stdio", "tcp", "ws":
	default:
		return fmt.Errorf("TRANSPORT must be one of stdio, tcp, ws, got %q", c.Transport)
	}
	if c.Transport != "stdio" && c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR is required for transport %q", c.Transport)
	}

	if c.RequestTTLSeconds < 1 {
		return fmt.Errorf("REQUEST_TTL_SECONDS must be at least 1, got %d", c.RequestTTLSeconds)
	}
	if c.TimeoutSweepIntervalSecs < 1 {
		return fmt.Errorf("TIMEOUT_SWEEP_INTERVAL_SECONDS must be at least 1, got %d", c.TimeoutSweepIntervalSecs)
	}
	if c.MaxMessageSizeBytes < 1024 {
		return fmt.Errorf("MAX_MESSAGE_SIZE_BYTES must be at least 1024, got %d", c.MaxMessageSizeBytes)
	}
	if c.BufferSizeBytes < c.MaxMessageSizeBytes {
		return fmt.Errorf("BUFFER_SIZE_BYTES (%d) must be >= MAX_MESSAGE_SIZE_BYTES (%d)", c.BufferSizeBytes, c.MaxMessageSizeBytes)
	}
	if c.BackpressureThresholdRatio <= 0 || c.BackpressureThresholdRatio > 1 {
		return fmt.Errorf("BACKPRESSURE_THRESHOLD_RATIO must be in (0,1], got %f", c.BackpressureThresholdRatio)
	}
	if c.TokenTaxRate < 0 {
		return fmt.Errorf("TOKEN_TAX_RATE must be >= 0, got %f", c.TokenTaxRate)
	}

	// Write timeout must exceed request TTL so the diagnostics server never
	// truncates a response mid-write while a dispatcher request is still live.
	if c.HTTPWriteTimeout > 0 && c.HTTPWriteTimeout < c.RequestTTL() {
		return fmt.Errorf("HTTP_WRITE_TIMEOUT (%v) must be >= REQUEST_TTL_SECONDS (%v)", c.HTTPWriteTimeout, c.RequestTTL())
	}

	if c.IsProduction() && c.MirrorDatabaseURL == "" {
		slog.Warn("MIRROR_DATABASE_URL not set — running without a durable Postgres mirror")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RequestTTL returns RequestTTLSeconds as a time.Duration.
func (c *Config) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLSeconds) * time.Second
}

// TimeoutSweepInterval returns TimeoutSweepIntervalSecs as a time.Duration.
func (c *Config) TimeoutSweepInterval() time.Duration {
	return time.Duration(c.TimeoutSweepIntervalSecs) * time.Second
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
