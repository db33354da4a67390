package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN                    string `mapstructure:"dsn"`
	RetentionDays          int    `mapstructure:"retention_days"`
	CleanupIntervalMinutes int    `mapstructure:"cleanup_interval_minutes"`
}

// Retention returns the entry TTL as a duration.
func (d DatabaseConfig) Retention() time.Duration {
	days := d.RetentionDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}

// CleanupInterval returns how often the expiry sweeper runs.
func (d DatabaseConfig) CleanupInterval() time.Duration {
	minutes := d.CleanupIntervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	TxLogListKey string `mapstructure:"txlog_list_key"`
	TxLogListMax int    `mapstructure:"txlog_list_max"`
}

type CaptureConfig struct {
	RequestBodyLimitBytes  int    `mapstructure:"request_body_limit_bytes"`
	ResponseBodyLimitBytes int    `mapstructure:"response_body_limit_bytes"`
	PreviewBytes           int    `mapstructure:"preview_bytes"`
	MaxDepth               int    `mapstructure:"max_depth"`
	LogDir                 string `mapstructure:"log_dir"`
}

type IngestConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. BARCOS_DATABASE_DSN
	viper.SetEnvPrefix("barcos")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("database.retention_days", 14)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("redis.txlog_list_key", "transaction_logs")
	viper.SetDefault("redis.txlog_list_max", 10000)
	viper.SetDefault("capture.request_body_limit_bytes", 10000)
	viper.SetDefault("capture.response_body_limit_bytes", 5000)
	viper.SetDefault("capture.preview_bytes", 1000)
	viper.SetDefault("capture.max_depth", 10)
	viper.SetDefault("capture.log_dir", "./logs")
	viper.SetDefault("ingest.rate_per_second", 10)
	viper.SetDefault("ingest.burst", 30)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
