package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration, loaded from the environment
// with an optional .env overlay.
type Config struct {
	AppName     string
	Environment string
	LogLevel    string
	PrettyLogs  bool

	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Tracing  TracingConfig
	Ingest   IngestConfig
}

// ServerConfig is the HTTP server configuration.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig is the PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host                string
	Port                int
	User                string
	Password            string
	Name                string
	SSLMode             string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	MigrationFolderPath string
	AutoMigrate         bool
}

// KafkaConfig is the snapshot feed consumer configuration.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	GroupID   string
	BatchSize int
}

// TracingConfig is the OTLP exporter configuration. Tracing is disabled when
// the endpoint is empty.
type TracingConfig struct {
	Endpoint string
	Protocol string
	Insecure bool
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	BatchSize  int
	SkipErrors bool
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:     getEnv("APP_NAME", "pricebook-api"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PrettyLogs:  getEnvAsBool("PRETTY_LOGS", false),
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     time.Duration(getEnvAsInt("SERVER_READ_TIMEOUT", 15)) * time.Second,
			WriteTimeout:    time.Duration(getEnvAsInt("SERVER_WRITE_TIMEOUT", 15)) * time.Second,
			IdleTimeout:     time.Duration(getEnvAsInt("SERVER_IDLE_TIMEOUT", 60)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 10)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:                getEnv("DB_HOST", "localhost"),
			Port:                getEnvAsInt("DB_PORT", 5432),
			User:                getEnv("DB_USER", "postgres"),
			Password:            getEnv("DB_PASSWORD", "postgres"),
			Name:                getEnv("DB_NAME", "pricebook"),
			SSLMode:             getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:        getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:        getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:     time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
			MigrationFolderPath: getEnv("DB_MIGRATION_FOLDER", "db/pg"),
			AutoMigrate:         getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Enabled:   getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:   getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:     getEnv("KAFKA_TOPIC", "catalog-snapshots"),
			GroupID:   getEnv("KAFKA_GROUP_ID", "pricebook"),
			BatchSize: getEnvAsInt("KAFKA_BATCH_SIZE", 500),
		},
		Tracing: TracingConfig{
			Endpoint: getEnv("OTLP_ENDPOINT", ""),
			Protocol: getEnv("OTLP_PROTOCOL", "grpc"),
			Insecure: getEnvAsBool("OTLP_INSECURE", true),
		},
		Ingest: IngestConfig{
			BatchSize:  getEnvAsInt("INGEST_BATCH_SIZE", 500),
			SkipErrors: getEnvAsBool("INGEST_SKIP_ERRORS", false),
		},
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT %d", cfg.Server.Port)
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED is set but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
