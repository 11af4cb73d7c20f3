package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/weekwatch/internal/storage"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"`
	Path  string      `mapstructure:"path"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TrackingConfig defines session tracking settings
type TrackingConfig struct {
	Timezone           string `mapstructure:"timezone"`
	MinSessionDuration string `mapstructure:"min_session_duration"`
	OptOutCutoffDays   int    `mapstructure:"optout_cutoff_days"`
}

// EvaluationConfig defines the weekly classification tiers. The thresholds
// were still being tuned when the rule was written down, so they are
// configuration rather than constants.
type EvaluationConfig struct {
	SingleDayMinimum string `mapstructure:"single_day_minimum"`
	MultiDayMinimum  string `mapstructure:"multi_day_minimum"`
	WeeklyGoal       string `mapstructure:"weekly_goal"`
}

// BridgeConfig defines how to reach the chat-platform bridge for presence
// and member queries.
type BridgeConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	Timeout       string `mapstructure:"timeout"`
	NameCacheSize int    `mapstructure:"name_cache_size"`
	NameCacheTTL  string `mapstructure:"name_cache_ttl"`
}

// WebhookConfig defines the outbound notification webhook.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Timeout string `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("WEEKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/weekwatch/weekwatch.bolt")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Tracking defaults
	v.SetDefault("tracking.timezone", "Asia/Seoul")
	v.SetDefault("tracking.min_session_duration", "20m")
	v.SetDefault("tracking.optout_cutoff_days", 3)

	// Evaluation defaults
	v.SetDefault("evaluation.single_day_minimum", "4h")
	v.SetDefault("evaluation.multi_day_minimum", "1h")
	v.SetDefault("evaluation.weekly_goal", "4h")

	// Bridge defaults
	v.SetDefault("bridge.base_url", "http://localhost:8090")
	v.SetDefault("bridge.timeout", "10s")
	v.SetDefault("bridge.name_cache_size", 512)
	v.SetDefault("bridge.name_cache_ttl", "1h")

	// Webhook defaults
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.timeout", "10s")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for bolt storage")
		}
		if err := storage.EnsureDir(filepath.Dir(cfg.Storage.Path)); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (must be 'bolt' or 'redis')", cfg.Storage.Type)
	}

	if _, err := time.LoadLocation(cfg.Tracking.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Tracking.Timezone, err)
	}
	if _, err := time.ParseDuration(cfg.Tracking.MinSessionDuration); err != nil {
		return fmt.Errorf("invalid min_session_duration: %w", err)
	}
	if cfg.Tracking.OptOutCutoffDays < 0 || cfg.Tracking.OptOutCutoffDays > 7 {
		return fmt.Errorf("invalid optout_cutoff_days: %d", cfg.Tracking.OptOutCutoffDays)
	}

	for name, val := range map[string]string{
		"single_day_minimum": cfg.Evaluation.SingleDayMinimum,
		"multi_day_minimum":  cfg.Evaluation.MultiDayMinimum,
		"weekly_goal":        cfg.Evaluation.WeeklyGoal,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid evaluation.%s: %w", name, err)
		}
	}

	if cfg.Webhook.Enabled && cfg.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}

	return nil
}
