package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	// DatabaseURL selects the Postgres store; empty runs on the in-memory store.
	DatabaseURL        string        `env:"DATABASE_URL"`
	DBMaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int           `env:"DB_MAX_IDLE_CONNS" envDefault:"25"`
	DBConnMaxLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnectTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	MigrateOnStart     bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	JWTSecretKey       string        `env:"JWT_SECRET_KEY"`
	TicketSigningKey   string        `env:"TICKET_SIGNING_KEY"`
	ServerPort         int           `env:"SERVER_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	SchedulerInterval  time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
	CatalogCacheTTL    time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"1m"`
	TracingExporter    string        `env:"TRACING_EXPORTER" envDefault:"none"`

	R2AccountID       string `env:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `env:"R2_SECRET_ACCESS_KEY"`
	R2BucketName      string `env:"R2_BUCKET_NAME"`
	R2PublicBaseURL   string `env:"R2_PUBLIC_BASE_URL"`
	// S3Endpoint overrides the R2 endpoint derived from R2AccountID, e.g. for MinIO.
	S3Endpoint string `env:"S3_ENDPOINT"`

	SMTPHost string `env:"SMTP_HOST"`
	SMTPPort int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM"`
}

// PassStorageEnabled reports whether ticket passes can be uploaded.
func (c *Config) PassStorageEnabled() bool {
	return c.R2BucketName != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		(c.R2AccountID != "" || c.S3Endpoint != "")
}

// MailEnabled reports whether confirmation mail can be sent.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TicketSigningKey == "" {
		cfg.TicketSigningKey = cfg.JWTSecretKey
	}
	cfg.TracingExporter = strings.ToLower(strings.TrimSpace(cfg.TracingExporter))
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecretKey == "" {
		return errors.New("JWT_SECRET_KEY environment variable is not set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", c.SchedulerInterval)
	}
	switch strings.ToLower(strings.TrimSpace(c.TracingExporter)) {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("TRACING_EXPORTER must be one of none, stdout; got %q", c.TracingExporter)
	}
	return nil
}
