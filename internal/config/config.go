// Package config provides configuration management for the APM backend.
//
// Configuration is loaded from multiple sources, in order of increasing
// precedence:
//  1. Defaults set in code
//  2. A YAML config file (./configs/config.yaml or /etc/brokle/config.yaml), if present
//  3. A local .env file, if present
//  4. Environment variables
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// AppConfig carries the application's name and version, surfaced on
// /healthz. The JSON-RPC "initialize" response does not read it; it reports
// the fixed server name "miniapm" and version "0.1.0".
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Environment        string        `mapstructure:"environment"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestSize     int64         `mapstructure:"max_request_size"`
	EnableCORS         bool          `mapstructure:"enable_cors"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// GRPCConfig holds the optional OTLP/gRPC receiver's port (SPEC_FULL
// SUPPLEMENTED FEATURES — "Optional gRPC OTLP receiver").
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// DatabaseConfig holds the embedded SQLite store's settings.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// IngestConfig holds ingestion-time behavior thresholds.
type IngestConfig struct {
	SlowRequestThresholdMs int64 `mapstructure:"slow_request_threshold_ms"`
	EnableProjects         bool  `mapstructure:"enable_projects"`
	MaxBodyBytes           int64 `mapstructure:"max_body_bytes"`
}

// RetentionConfig holds the retention windows enforced by the nightly
// retention job. Deploy-marker retention is intentionally absent
// here: it is fixed at apm.DeployRetention.
type RetentionConfig struct {
	SpansDays         int `mapstructure:"spans_days"`
	ErrorsDays        int `mapstructure:"errors_days"`
	HourlyRollupsDays int `mapstructure:"hourly_rollups_days"`
}

// Load reads configuration from file, .env, and environment variables, in
// that order of increasing precedence, and returns the resolved Config.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/brokle")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	//nolint:errcheck
	viper.BindEnv("database.path", "SQLITE_PATH")
	//nolint:errcheck
	viper.BindEnv("retention.spans_days", "RETENTION_DAYS_SPANS")
	//nolint:errcheck
	viper.BindEnv("retention.errors_days", "RETENTION_DAYS_ERRORS")
	//nolint:errcheck
	viper.BindEnv("retention.hourly_rollups_days", "RETENTION_DAYS_HOURLY_ROLLUPS")
	//nolint:errcheck
	viper.BindEnv("ingest.slow_request_threshold_ms", "SLOW_REQUEST_THRESHOLD_MS")
	//nolint:errcheck
	viper.BindEnv("ingest.enable_projects", "ENABLE_PROJECTS")
	//nolint:errcheck
	viper.BindEnv("server.port", "PORT")
	//nolint:errcheck
	viper.BindEnv("server.environment", "ENV")
	//nolint:errcheck
	viper.BindEnv("logging.level", "LOG_LEVEL")
	//nolint:errcheck
	viper.BindEnv("logging.format", "LOG_FORMAT")
	//nolint:errcheck
	viper.BindEnv("grpc.enabled", "OTLP_GRPC_ENABLED")
	//nolint:errcheck
	viper.BindEnv("grpc.port", "OTLP_GRPC_PORT")

	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "apm-engine")
	viper.SetDefault("app.version", "0.1.0")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.environment", "development")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("server.max_request_size", 10<<20) // 10 MiB
	viper.SetDefault("server.enable_cors", true)
	viper.SetDefault("server.cors_allowed_origins", []string{"*"})

	viper.SetDefault("grpc.enabled", false)
	viper.SetDefault("grpc.port", 4317)

	viper.SetDefault("database.path", "./data/miniapm.db")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.busy_timeout", "5s")
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("ingest.slow_request_threshold_ms", 500)
	viper.SetDefault("ingest.enable_projects", false)
	viper.SetDefault("ingest.max_body_bytes", 10<<20)

	viper.SetDefault("retention.spans_days", 7)
	viper.SetDefault("retention.errors_days", 30)
	viper.SetDefault("retention.hourly_rollups_days", 90)
}

// Validate checks invariants that Unmarshal alone can't enforce.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Retention.SpansDays <= 0 {
		return fmt.Errorf("retention.spans_days must be positive")
	}
	if c.Retention.ErrorsDays <= 0 {
		return fmt.Errorf("retention.errors_days must be positive")
	}
	if c.Retention.HourlyRollupsDays <= 0 {
		return fmt.Errorf("retention.hourly_rollups_days must be positive")
	}
	return nil
}

// GetSQLitePath returns the configured path to the SQLite database file.
func (c *Config) GetSQLitePath() string {
	return c.Database.Path
}
