package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// File storage engine
	Storage StorageConfig `mapstructure:"storage"`

	// URL shortener
	Shortener ShortenerConfig `mapstructure:"shortener"`

	// HTTP surface
	Server ServerConfig `mapstructure:"server"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns          int32  `mapstructure:"max_conns"`
	MinConns          int32  `mapstructure:"min_conns"`
	MaxConnLifetime   string `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   string `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod string `mapstructure:"health_check_period"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	MonitorPort int    `mapstructure:"monitor_port"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

// StorageConfig controls the chunked upload engine. Chunks larger than
// ChunkSizeBytes are rejected because the message transport has its own
// per-message ceiling.
type StorageConfig struct {
	MaxFileSizeBytes int64  `mapstructure:"max_file_size_bytes"`
	ChunkSizeBytes   int64  `mapstructure:"chunk_size_bytes"`
	SendTimeout      string `mapstructure:"send_timeout"`
	StaleUploadTTL   string `mapstructure:"stale_upload_ttl"`
}

// ShortenerConfig controls short-code generation and presentation.
type ShortenerConfig struct {
	CodeLength   int    `mapstructure:"code_length"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
	CustomDomain string `mapstructure:"custom_domain"`
}

type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	Secret string `mapstructure:"secret"`
}

const (
	// DefaultMaxFileSize caps a single upload at 4GB.
	DefaultMaxFileSize = int64(4) << 30
	// DefaultChunkSize keeps peak per-request memory bounded at 1MB.
	DefaultChunkSize = int64(1) << 20

	DefaultCodeLength  = 7
	DefaultMaxAttempts = 8
)

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.MaxFileSizeBytes == 0 {
		cfg.Storage.MaxFileSizeBytes = DefaultMaxFileSize
	}
	if cfg.Storage.ChunkSizeBytes == 0 {
		cfg.Storage.ChunkSizeBytes = DefaultChunkSize
	}
	if cfg.Shortener.CodeLength == 0 {
		cfg.Shortener.CodeLength = DefaultCodeLength
	}
	if cfg.Shortener.MaxAttempts == 0 {
		cfg.Shortener.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}

func validate(cfg *Config) error {
	if cfg.Storage.MaxFileSizeBytes < 0 {
		return fmt.Errorf("config: max_file_size_bytes must be positive")
	}
	if cfg.Storage.ChunkSizeBytes <= 0 || cfg.Storage.ChunkSizeBytes > cfg.Storage.MaxFileSizeBytes {
		return fmt.Errorf("config: chunk_size_bytes must be in (0, max_file_size_bytes]")
	}
	if cfg.Shortener.CodeLength < 4 || cfg.Shortener.CodeLength > 32 {
		return fmt.Errorf("config: short code length %d out of range [4,32]", cfg.Shortener.CodeLength)
	}
	return nil
}

func bindEnvVars(v *viper.Viper) {
	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")
	v.BindEnv("nats.monitor_port", "NATS_MONITOR_PORT")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Storage engine
	v.BindEnv("storage.max_file_size_bytes", "MAX_FILE_SIZE")
	v.BindEnv("storage.chunk_size_bytes", "CHUNK_SIZE")
	v.BindEnv("storage.stale_upload_ttl", "STALE_UPLOAD_TTL")

	// Shortener
	v.BindEnv("shortener.code_length", "SHORT_URL_LENGTH")
	v.BindEnv("shortener.custom_domain", "CUSTOM_DOMAIN")

	// Server
	v.BindEnv("server.addr", "SERVER_ADDR")
	v.BindEnv("server.secret", "API_KEY")
}
