// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// StorageConfig selects the persistence provider.
type StorageConfig struct {
	// Provider is "postgres" or "memory".
	Provider string `mapstructure:"provider"`
}

// DatabaseConfig controls the Postgres pool.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	ConnLifetimeMin int    `mapstructure:"conn_lifetime_minutes"`
}

// RedisConfig controls the Redis client used for counters, the keyword
// cache and the work queue. Disabled means in-memory equivalents.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueKey string `mapstructure:"queue_key"`
}

// AdmissionConfig controls submission gating.
type AdmissionConfig struct {
	// Windows are "seconds:limit" pairs evaluated in order.
	Windows []string `mapstructure:"windows"`
}

// CrawlConfig governs the crawl executor and worker pool.
type CrawlConfig struct {
	Workers        int    `mapstructure:"workers"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ResultTTLHours int    `mapstructure:"result_ttl_hours"`
	CacheTTLSecs   int    `mapstructure:"cache_ttl_seconds"`
	GlobalRPS      int    `mapstructure:"global_rps"`
	QueueDepth     int    `mapstructure:"queue_depth"`
	BaseDir        string `mapstructure:"base_dir"`
}

// NotifyConfig controls completion mail.
type NotifyConfig struct {
	Attempts       int `mapstructure:"attempts"`
	BackoffSeconds int `mapstructure:"backoff_seconds"`
}

// ClassifierConfig points at the link rule file.
type ClassifierConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DISKSEEK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_lifetime_minutes", 30)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.queue_key", "crawl:queue")
	v.SetDefault("admission.windows", []string{"60:3", "3600:10", "86400:30"})
	v.SetDefault("crawl.workers", 2)
	v.SetDefault("crawl.timeout_seconds", 1200)
	v.SetDefault("crawl.result_ttl_hours", 24)
	v.SetDefault("crawl.cache_ttl_seconds", 3600)
	v.SetDefault("crawl.global_rps", 0)
	v.SetDefault("crawl.queue_depth", 1024)
	v.SetDefault("notify.attempts", 5)
	v.SetDefault("notify.backoff_seconds", 60)
	v.SetDefault("classifier.rules_file", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Storage.Provider {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required with the postgres provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.provider %q", c.Storage.Provider)
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if _, err := c.RateWindows(); err != nil {
		return err
	}
	return nil
}

// RateWindows parses the "seconds:limit" window pairs.
func (c Config) RateWindows() ([]RateWindow, error) {
	out := make([]RateWindow, 0, len(c.Admission.Windows))
	for _, raw := range c.Admission.Windows {
		var w RateWindow
		if _, err := fmt.Sscanf(raw, "%d:%d", &w.Seconds, &w.Limit); err != nil {
			return nil, fmt.Errorf("admission window %q: want seconds:limit", raw)
		}
		if w.Seconds <= 0 || w.Limit <= 0 {
			return nil, fmt.Errorf("admission window %q: values must be > 0", raw)
		}
		out = append(out, w)
	}
	return out, nil
}

// RateWindow is one parsed admission window.
type RateWindow struct {
	Seconds int
	Limit   int64
}

// CrawlTimeout converts the crawl budget into a duration.
func (c Config) CrawlTimeout() time.Duration {
	return time.Duration(c.Crawl.TimeoutSeconds) * time.Second
}

// ResultTTL converts the result retention into a duration.
func (c Config) ResultTTL() time.Duration {
	return time.Duration(c.Crawl.ResultTTLHours) * time.Hour
}

// CacheTTL converts the keyword cache retention into a duration.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Crawl.CacheTTLSecs) * time.Second
}

// NotifyBackoff converts the retry backoff into a duration.
func (c Config) NotifyBackoff() time.Duration {
	return time.Duration(c.Notify.BackoffSeconds) * time.Second
}
