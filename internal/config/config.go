package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DBConfig describes how to reach the network's content database.
type DBConfig struct {
	DSN      string `yaml:"dsn" env:"APP_DB_DSN"`
	Host     string `yaml:"host" env:"APP_DB_HOST"`
	Name     string `yaml:"name" env:"APP_DB_NAME"`
	User     string `yaml:"user" env:"APP_DB_USER"`
	Password string `yaml:"password" env:"APP_DB_PASSWORD"`
	Port     string `yaml:"port" env:"APP_DB_PORT"`
	SSLMode  string `yaml:"sslmode" env:"APP_DB_SSLMODE"`
	// TablePrefix is the network table prefix; site N>1 uses TablePrefix+"N_".
	TablePrefix string `yaml:"table_prefix" env:"APP_DB_TABLE_PREFIX"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" env:"APP_LOG_LEVEL"`
	Encoding    string `yaml:"encoding" env:"APP_LOG_ENCODING"`
	Development bool   `yaml:"development" env:"APP_LOG_DEVELOPMENT"`
}

// RateLimitConfig bounds per-client request rates on the API routes.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"APP_RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"APP_RATE_LIMIT_BURST"`
}

type Config struct {
	ListenAddr string `yaml:"listen_addr" env:"APP_LISTEN_ADDR"`
	// BaseURL is the public network URL; site paths are appended to it.
	BaseURL     string `yaml:"base_url" env:"APP_BASE_URL"`
	FlagBaseURL string `yaml:"flag_base_url" env:"APP_FLAG_BASE_URL"`
	Timezone    string `yaml:"timezone" env:"APP_TIMEZONE"`

	DB        DBConfig        `yaml:"db"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	CacheTTL          time.Duration `yaml:"cache_ttl" env:"APP_CACHE_TTL"`
	PrometheusEnabled bool          `yaml:"prometheus_enabled" env:"APP_PROMETHEUS_ENDPOINT_ENABLED"`
	TrustedProxies    []string      `yaml:"trusted_proxies" env:"APP_TRUSTED_PROXIES" envSeparator:","`
	CORSOrigins       []string      `yaml:"cors_origins" env:"APP_CORS_ORIGINS" envSeparator:","`

	location *time.Location
}

// Default returns the configuration used when neither a file nor the environment set a value.
func Default() *Config {
	return &Config{
		ListenAddr:  ":8080",
		BaseURL:     "http://localhost:8080",
		FlagBaseURL: "http://localhost:8080/wp-content/plugins/sitepress-multilingual-cms/res/flags/",
		Timezone:    "Europe/Berlin",
		DB: DBConfig{
			Port:        "5432",
			SSLMode:     "disable",
			TablePrefix: "wp_",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		RateLimit: RateLimitConfig{
			RPS:   20,
			Burst: 50,
		},
		CacheTTL:    5 * time.Minute,
		CORSOrigins: []string{"*"},
	}
}

// Load reads the optional YAML file named by APP_CONFIG_FILE and then applies APP_* environment
// variables on top of it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("APP_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	if c.DB.DSN == "" {
		var missing []string
		if c.DB.Host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if c.DB.Name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if c.DB.User == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if c.DB.Password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}
		if len(missing) == 0 {
			c.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
		}
	}
	if c.DB.DSN == "" {
		return errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}

	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		return errors.New("APP_BASE_URL must not be empty")
	}
	if c.DB.TablePrefix == "" {
		return errors.New("APP_DB_TABLE_PREFIX must not be empty")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("APP_TIMEZONE %q: %w", c.Timezone, err)
	}
	c.location = loc

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%v, burst=%d)", c.RateLimit.RPS, c.RateLimit.Burst)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("APP_CACHE_TTL must not be negative (got %s)", c.CacheTTL)
	}
	return nil
}

// Location is the site time zone used for permalink dates and event occurrences.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}
