package config

import (
	"fmt"
	"time"

	"github.com/utafrali/proflens/internal/rating"
	pkgconfig "github.com/utafrali/proflens/pkg/config"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

const defaultJWTSecret = "change-this-to-a-secure-secret"

// Config holds all configuration for the ProfLens API.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PROFLENS_HTTP_PORT" envDefault:"8080"`

	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"proflens"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"proflens_secret"`
	PostgresDB            string `env:"PROFLENS_DB_NAME" envDefault:"proflens"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"10"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// MongoDB
	MongoURI          string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"proflens"`
	MongoMaxPoolSize  uint64 `env:"MONGO_MAX_POOL_SIZE" envDefault:"50"`
	// Review mutations are only all-or-nothing with transactions, which need
	// a replica set. Only development may turn them off.
	MongoTransactions bool   `env:"MONGO_TRANSACTIONS" envDefault:"true"`

	// Ratings
	RatingUnsetPolicy string `env:"RATING_UNSET_POLICY" envDefault:"exclude"`

	// Redis cache
	RedisEnabled  bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// Kafka; empty disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// JWT
	JWTSecret       string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAccessExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// pprof is only mounted when at least one CIDR is configured.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, ".env"); err != nil {
		return nil, fmt.Errorf("load proflens config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StoreDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %q, %q or %q, got %q",
			DriverPostgres, DriverMongo, DriverMemory, c.StoreDriver)
	}

	if _, err := rating.ParseUnsetPolicy(c.RatingUnsetPolicy); err != nil {
		return fmt.Errorf("RATING_UNSET_POLICY: %w", err)
	}

	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		if c.StoreDriver == DriverMemory {
			return fmt.Errorf("STORE_DRIVER %q is only allowed in development", DriverMemory)
		}
		if c.StoreDriver == DriverMongo && !c.MongoTransactions {
			return fmt.Errorf("MONGO_TRANSACTIONS can only be disabled in development")
		}
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}

	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// UnsetPolicy returns the parsed rating unset policy. Validate has already
// rejected unknown values.
func (c *Config) UnsetPolicy() rating.UnsetPolicy {
	p, _ := rating.ParseUnsetPolicy(c.RatingUnsetPolicy)
	return p
}
