package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Upstream      UpstreamConfig      `mapstructure:"upstream" validate:"required"`
	Session       SessionConfig       `mapstructure:"session"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	SessionSecret  string        `mapstructure:"session_secret" validate:"required,min=32"`
	CookieName     string        `mapstructure:"cookie_name"`
	CookieTTL      time.Duration `mapstructure:"cookie_ttl"`
	CookieSecure   bool          `mapstructure:"cookie_secure"`
	LoginRatePerIP float64       `mapstructure:"login_rate_per_ip"`
	LoginBurst     int           `mapstructure:"login_burst"`
}

// UpstreamConfig locates the remote content-management API the gateway fronts.
type UpstreamConfig struct {
	BaseURL    string        `mapstructure:"base_url" validate:"required,url"`
	APIPrefix  string        `mapstructure:"api_prefix"`
	AuthPrefix string        `mapstructure:"auth_prefix"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SessionConfig carries the idle-timeout policy: warn WarningLead before the
// IdleCutoff, evaluate every CheckInterval, purge dead rows on SweepSchedule.
type SessionConfig struct {
	IdleCutoff    time.Duration `mapstructure:"idle_cutoff"`
	WarningLead   time.Duration `mapstructure:"warning_lead"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type CacheConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultIdleCutoff    = 30 * time.Minute
	DefaultWarningLead   = 5 * time.Minute
	DefaultCheckInterval = 60 * time.Second
	DefaultStaleAfter    = 5 * time.Minute
	DefaultCookieName    = "ag_session"
)

// ApplyDefaults fills zero values with the policy defaults.
func (c *Config) ApplyDefaults() {
	if c.Session.IdleCutoff <= 0 {
		c.Session.IdleCutoff = DefaultIdleCutoff
	}
	if c.Session.WarningLead <= 0 {
		c.Session.WarningLead = DefaultWarningLead
	}
	if c.Session.CheckInterval <= 0 {
		c.Session.CheckInterval = DefaultCheckInterval
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = "@every 1h"
	}
	if c.Cache.StaleAfter <= 0 {
		c.Cache.StaleAfter = DefaultStaleAfter
	}
	if c.Security.CookieName == "" {
		c.Security.CookieName = DefaultCookieName
	}
	if c.Security.CookieTTL <= 0 {
		c.Security.CookieTTL = 12 * time.Hour
	}
	if c.Security.LoginRatePerIP <= 0 {
		c.Security.LoginRatePerIP = 1
	}
	if c.Security.LoginBurst <= 0 {
		c.Security.LoginBurst = 5
	}
	if c.Upstream.APIPrefix == "" {
		c.Upstream.APIPrefix = "/approval-plugin/v1"
	}
	if c.Upstream.AuthPrefix == "" {
		c.Upstream.AuthPrefix = "/jwt-auth/v1"
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = 15 * time.Second
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config entirely from environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			SessionSecret: getEnv("SESSION_SECRET", ""),
			CookieName:    getEnv("SESSION_COOKIE_NAME", DefaultCookieName),
			CookieTTL:     getEnvAsDuration("SESSION_COOKIE_TTL", 12*time.Hour),
			CookieSecure:  getEnv("SESSION_COOKIE_SECURE", "true") == "true",
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", ""),
			APIPrefix:  getEnv("UPSTREAM_API_PREFIX", "/approval-plugin/v1"),
			AuthPrefix: getEnv("UPSTREAM_AUTH_PREFIX", "/jwt-auth/v1"),
			Timeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		},
		Session: SessionConfig{
			IdleCutoff:    getEnvAsDuration("SESSION_IDLE_CUTOFF", DefaultIdleCutoff),
			WarningLead:   getEnvAsDuration("SESSION_WARNING_LEAD", DefaultWarningLead),
			CheckInterval: getEnvAsDuration("SESSION_CHECK_INTERVAL", DefaultCheckInterval),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "@every 1h"),
		},
		Cache: CacheConfig{
			StaleAfter: getEnvAsDuration("CACHE_STALE_AFTER", DefaultStaleAfter),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Upstream.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("upstream config: %v", err))
	}

	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("session config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	return nil
}

func (c *UpstreamConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if c.WarningLead >= c.IdleCutoff && c.IdleCutoff > 0 {
		return errors.New("warning_lead must be shorter than idle_cutoff")
	}
	return nil
}
