package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the HunarMitra dispatch backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Emergency  EmergencyConfig  `mapstructure:"emergency"`
	Push       PushConfig       `mapstructure:"push"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Timeline   TimelineConfig   `mapstructure:"timeline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig controls the global zap logger.
type LoggingConfig struct {
	Level string        `mapstructure:"level"`
	File  LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotating JSON log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures token validation settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// EmergencyConfig holds intake and dispatch toggles.
type EmergencyConfig struct {
	AutoAssign         bool          `mapstructure:"auto_assign"`
	SearchRadiusKm     float64       `mapstructure:"search_radius_km"`
	MaxCandidates      int           `mapstructure:"max_candidates"`
	CandidatePoolLimit int           `mapstructure:"candidate_pool_limit"`
	ResponseTimeout    time.Duration `mapstructure:"response_timeout"`
	SweepSchedule      string        `mapstructure:"sweep_schedule"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
}

// PushConfig holds device delivery settings.
type PushConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BatchSize          int           `mapstructure:"batch_size"`
	BackoffBase        time.Duration `mapstructure:"backoff_base"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	CredentialsFile    string        `mapstructure:"credentials_file"`
	ProjectID          string        `mapstructure:"project_id"`
	RequeueAfter       time.Duration `mapstructure:"requeue_after"`
	RequeueSchedule    string        `mapstructure:"requeue_schedule"`
}

// QueueConfig selects and tunes the background task queue.
type QueueConfig struct {
	Backend      string        `mapstructure:"backend"`
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Batch        int           `mapstructure:"batch"`
	Retention    time.Duration `mapstructure:"retention"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
	RetryMax     time.Duration `mapstructure:"retry_max"`
}

// RealtimeConfig configures event fan-out across processes.
type RealtimeConfig struct {
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix"`
}

// TimelineConfig selects where emergency timeline events are stored.
type TimelineConfig struct {
	Backend       string `mapstructure:"backend"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// An explicit file path (ending in .yaml/.yml) is read directly; other arguments are
// treated as search directories for config.yaml.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	explicit := false
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			v.SetConfigFile(path)
			explicit = true
			continue
		}
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("HUNARMITRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/hunarmitra.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.mysql.port", 3306)

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "hunarmitra")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")

	v.SetDefault("emergency.auto_assign", false)
	v.SetDefault("emergency.search_radius_km", 5.0)
	v.SetDefault("emergency.max_candidates", 5)
	v.SetDefault("emergency.candidate_pool_limit", 100)
	v.SetDefault("emergency.response_timeout", "45s")
	v.SetDefault("emergency.sweep_schedule", "@every 60s")
	v.SetDefault("emergency.rate_limit_per_minute", 1)

	v.SetDefault("push.enabled", false)
	v.SetDefault("push.max_retries", 3)
	v.SetDefault("push.batch_size", 100)
	v.SetDefault("push.backoff_base", "1s")
	v.SetDefault("push.backoff_max", "10m")
	v.SetDefault("push.rate_limit_per_minute", 0)
	v.SetDefault("push.credentials_file", "")
	v.SetDefault("push.project_id", "")
	v.SetDefault("push.requeue_after", "1m")
	v.SetDefault("push.requeue_schedule", "@every 1m")

	v.SetDefault("queue.backend", "database")
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.batch", 16)
	v.SetDefault("queue.retention", "168h")
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.retry_base", "1s")
	v.SetDefault("queue.retry_max", "5m")

	v.SetDefault("realtime.redis_channel_prefix", "hunarmitra")

	v.SetDefault("timeline.backend", "database")
	v.SetDefault("timeline.mongo_uri", "")
	v.SetDefault("timeline.mongo_database", "hunarmitra")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
