package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Security    SecurityConfig    `json:"security"`
	RateLimit   RateLimitConfig   `json:"rate_limit"`
	Cache       CacheConfig       `json:"cache"`
	Tracing     TracingConfig     `json:"tracing"`
	Analytics   AnalyticsConfig   `json:"analytics"`
	Persistence PersistenceConfig `json:"persistence"`
	LogLevel    string            `json:"log_level"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port      string `json:"port"`
	Host      string `json:"host"`
	EnableTLS bool   `json:"enable_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
	Burst   int  `json:"burst"`
}

// CacheConfig selects and configures the dashboard cache.
type CacheConfig struct {
	Backend       string `json:"backend"` // "memory" or "redis"
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	TTLSeconds    int    `json:"ttl_seconds"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ServiceName string `json:"service_name"`
	Environment string `json:"environment"`
}

// AnalyticsConfig fixes the calendar used for day and week boundaries.
type AnalyticsConfig struct {
	Timezone  string `json:"timezone"`   // IANA name, "Local" for the host zone
	WeekStart string `json:"week_start"` // weekday name, e.g. "sunday"
	// DisabledAchievements is a comma-separated list of rule ids that never unlock.
	DisabledAchievements string `json:"disabled_achievements"`
}

// PersistenceConfig controls retries of achievement writes.
type PersistenceConfig struct {
	RetryInitialMillis int `json:"retry_initial_millis"`
	RetryMaxElapsedMs  int `json:"retry_max_elapsed_ms"`
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:      getEnv("SERVER_PORT", "8080"),
			Host:      getEnv("SERVER_HOST", ""),
			EnableTLS: getEnvBool("SERVER_ENABLE_TLS", false),
			CertFile:  getEnv("SERVER_CERT_FILE", ""),
			KeyFile:   getEnv("SERVER_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./donor_impact.db"),
		},
		Security: SecurityConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
			Burst:   getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			TTLSeconds:    getEnvInt("CACHE_TTL_SECONDS", 60),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("TRACING_ENDPOINT", "http://localhost:14268/api/traces"),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "donor-impact-api"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Analytics: AnalyticsConfig{
			Timezone:  getEnv("ANALYTICS_TIMEZONE", "Local"),
			WeekStart: getEnv("ANALYTICS_WEEK_START", "sunday"),

			DisabledAchievements: getEnv("ANALYTICS_DISABLED_ACHIEVEMENTS", ""),
		},
		Persistence: PersistenceConfig{
			RetryInitialMillis: getEnvInt("PERSIST_RETRY_INITIAL_MS", 100),
			RetryMaxElapsedMs:  getEnvInt("PERSIST_RETRY_MAX_ELAPSED_MS", 5000),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Load from config file if provided
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Environment variables win over the file
	overrideFromEnv(cfg)

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setBool(&cfg.Server.EnableTLS, "SERVER_ENABLE_TLS")
	setString(&cfg.Server.CertFile, "SERVER_CERT_FILE")
	setString(&cfg.Server.KeyFile, "SERVER_KEY_FILE")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	setString(&cfg.Security.AllowedOrigins, "ALLOWED_ORIGINS")
	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")
	setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "REDIS_DB")
	setInt(&cfg.Cache.TTLSeconds, "CACHE_TTL_SECONDS")
	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "TRACING_ENDPOINT")
	setString(&cfg.Tracing.ServiceName, "TRACING_SERVICE_NAME")
	setString(&cfg.Tracing.Environment, "ENVIRONMENT")
	setString(&cfg.Analytics.Timezone, "ANALYTICS_TIMEZONE")
	setString(&cfg.Analytics.WeekStart, "ANALYTICS_WEEK_START")
	setString(&cfg.Analytics.DisabledAchievements, "ANALYTICS_DISABLED_ACHIEVEMENTS")
	setInt(&cfg.Persistence.RetryInitialMillis, "PERSIST_RETRY_INITIAL_MS")
	setInt(&cfg.Persistence.RetryMaxElapsedMs, "PERSIST_RETRY_MAX_ELAPSED_MS")
	setString(&cfg.LogLevel, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v) == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Location resolves the analytics time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Analytics.Timezone == "" || strings.EqualFold(c.Analytics.Timezone, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(c.Analytics.Timezone)
}

// WeekStart resolves the configured first day of the week.
func (c *Config) WeekStart() (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.Analytics.WeekStart))
	if name == "" {
		return time.Sunday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == name {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown week start %q", c.Analytics.WeekStart)
}

// CacheTTL returns the dashboard cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache backend must be \"memory\" or \"redis\", got %q", c.Cache.Backend)
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid analytics timezone: %w", err)
	}
	if _, err := c.WeekStart(); err != nil {
		return err
	}
	if c.Persistence.RetryInitialMillis <= 0 || c.Persistence.RetryMaxElapsedMs <= 0 {
		return fmt.Errorf("persistence retry intervals must be positive")
	}
	return nil
}
