// Package config loads the service configuration from a YAML file, ALEPIZ_*
// environment variables and built-in defaults, in that order of precedence
// (environment first).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override: kafka.brokers is read from
// ALEPIZ_KAFKA_BROKERS.
const EnvPrefix = "ALEPIZ"

// Config holds all configuration parameters of the event service.
type Config struct {
	Database       string        `mapstructure:"database"`
	Timezone       string        `mapstructure:"timezone"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	MaxQueryParams int           `mapstructure:"max_query_params"`
	RulesDir       string        `mapstructure:"rules_dir"`
	LogLevel       string        `mapstructure:"log_level"`

	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Replication ReplicationConfig `mapstructure:"replication"`
}

// KafkaConfig configures evaluation ingest and mutation replication.
// An empty topic disables that side.
type KafkaConfig struct {
	Brokers          string `mapstructure:"brokers"`
	EvaluationsTopic string `mapstructure:"evaluations_topic"`
	GroupID          string `mapstructure:"group_id"`
	ReplicationTopic string `mapstructure:"replication_topic"`
}

// RedisConfig configures the task stream. An empty address logs task
// requests instead.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	TaskStream string `mapstructure:"task_stream"`
}

// PostgresConfig configures the mutation journal. An empty DSN disables it.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ReplicationConfig tunes the asynchronous replicator.
type ReplicationConfig struct {
	Buffer int `mapstructure:"buffer"`
}

var defaults = map[string]any{
	"database":                "alepiz-events.db",
	"timezone":                "Local",
	"flush_interval":          "15s",
	"max_query_params":        999,
	"rules_dir":               "",
	"log_level":               "info",
	"kafka.brokers":           "",
	"kafka.evaluations_topic": "",
	"kafka.group_id":          "alepiz-events",
	"kafka.replication_topic": "",
	"redis.addr":              "",
	"redis.task_stream":       "alepiz:tasks",
	"postgres.dsn":            "",
	"replication.buffer":      1024,
}

// Load reads path (optional) and the environment into a validated Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("using config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all fields have usable values.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("flush_interval must be >= 0")
	}
	if c.MaxQueryParams <= 0 {
		return fmt.Errorf("max_query_params must be > 0")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Kafka.EvaluationsTopic != "" {
		if c.Kafka.Brokers == "" {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka.evaluations_topic is set")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.group_id cannot be empty when kafka.evaluations_topic is set")
		}
	}
	if c.Kafka.ReplicationTopic != "" && c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.replication_topic is set")
	}
	if c.Redis.Addr != "" && c.Redis.TaskStream == "" {
		return fmt.Errorf("redis.task_stream cannot be empty when redis.addr is set")
	}
	if c.Replication.Buffer <= 0 {
		return fmt.Errorf("replication.buffer must be > 0")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Replicating reports whether any replication sink is configured.
func (c *Config) Replicating() bool {
	return c.Kafka.ReplicationTopic != "" || c.Postgres.DSN != ""
}

var errBadLevel = errors.New("log_level must be one of debug, info, warn, error")

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("%w: got %q", errBadLevel, s)
	}
}
