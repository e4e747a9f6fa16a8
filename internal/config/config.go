// Package config provides configuration management for the XMemory console.
// It loads settings from an optional YAML file and from environment variables
// with the XMEMORY_ prefix, and provides sensible defaults for every option.
//
// Precedence, lowest to highest: defaults, YAML file, environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the XMemory console.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
	UI       UIConfig       `yaml:"ui"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 6464)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// BackendConfig describes the XMemory REST backend the console talks to.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"` // default: http://localhost:8000/api/v1
	Timeout time.Duration `yaml:"timeout"`  // per-request timeout (default: 15s)

	// BreakerMaxFailures consecutive failures open the circuit (default: 5).
	BreakerMaxFailures uint32 `yaml:"breaker_max_failures"`
	// BreakerOpenTimeout is how long the circuit stays open (default: 30s).
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

// SessionConfig selects where console sessions are persisted.
type SessionConfig struct {
	Engine       string `yaml:"engine"`        // memory, sqlite or postgres (default: sqlite)
	DataPath     string `yaml:"data_path"`     // directory for the sqlite file (default: ./data)
	DSN          string `yaml:"dsn"`           // explicit DSN, required for postgres
	CookieName   string `yaml:"cookie_name"`   // default: xmemory_session
	CookieSecure bool   `yaml:"cookie_secure"` // set the Secure flag on the cookie
}

// SecurityConfig contains request throttling settings.
type SecurityConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // sustained requests per second (default: 10)
	RateBurst int     `yaml:"rate_burst"` // burst size (default: 20)
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Development bool   `yaml:"development"` // human friendly console output
}

// UIConfig contains view defaults.
type UIConfig struct {
	PageSize int `yaml:"page_size"` // default list page size (default: 10)
}

// Session engines.
const (
	EngineMemory   = "memory"
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// LoadConfig loads configuration from environment variables with sensible
// defaults. If XMEMORY_CONFIG names a YAML file it is read first.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("XMEMORY_CONFIG"))
}

// LoadConfigFile loads the YAML file at path (if path is non-empty), then
// applies environment overrides and validates the result.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values the console cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}

	switch c.Session.Engine {
	case EngineMemory, EngineSQLite:
	case EnginePostgres:
		if c.Session.DSN == "" {
			errs = append(errs, errors.New("session.dsn is required for the postgres engine"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.engine %q is not one of memory, sqlite, postgres", c.Session.Engine))
	}
	if c.Session.CookieName == "" {
		errs = append(errs, errors.New("session.cookie_name must not be empty"))
	}

	if c.Security.RateLimit <= 0 || c.Security.RateBurst < 1 {
		errs = append(errs, errors.New("security.rate_limit and security.rate_burst must be positive"))
	}

	if c.UI.PageSize < 1 || c.UI.PageSize > 100 {
		errs = append(errs, fmt.Errorf("ui.page_size %d must be within 1..100", c.UI.PageSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the host:port the web server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SessionDSN returns the DSN for the configured session engine. For sqlite
// without an explicit DSN it points into DataPath.
func (c *Config) SessionDSN() string {
	if c.Session.DSN != "" {
		return c.Session.DSN
	}
	if c.Session.Engine == EngineSQLite {
		return c.Session.DataPath + "/sessions.db"
	}
	return ""
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 6464,
			Host: "127.0.0.1",
		},
		Backend: BackendConfig{
			BaseURL:            "http://localhost:8000/api/v1",
			Timeout:            15 * time.Second,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			Engine:     EngineSQLite,
			DataPath:   "./data",
			CookieName: "xmemory_session",
		},
		Security: SecurityConfig{
			RateLimit: 10,
			RateBurst: 20,
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			PageSize: 10,
		},
	}
}

// applyEnv overlays XMEMORY_* environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("XMEMORY_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("XMEMORY_HOST", cfg.Server.Host)

	cfg.Backend.BaseURL = getEnv("XMEMORY_BACKEND_URL", cfg.Backend.BaseURL)
	cfg.Backend.Timeout = getEnvDuration("XMEMORY_BACKEND_TIMEOUT", cfg.Backend.Timeout)
	cfg.Backend.BreakerMaxFailures = uint32(getEnvInt("XMEMORY_BREAKER_MAX_FAILURES", int(cfg.Backend.BreakerMaxFailures)))
	cfg.Backend.BreakerOpenTimeout = getEnvDuration("XMEMORY_BREAKER_OPEN_TIMEOUT", cfg.Backend.BreakerOpenTimeout)

	cfg.Session.Engine = getEnv("XMEMORY_SESSION_ENGINE", cfg.Session.Engine)
	cfg.Session.DataPath = getEnv("XMEMORY_DATA_PATH", cfg.Session.DataPath)
	cfg.Session.DSN = getEnv("XMEMORY_SESSION_DSN", cfg.Session.DSN)
	cfg.Session.CookieName = getEnv("XMEMORY_COOKIE_NAME", cfg.Session.CookieName)
	cfg.Session.CookieSecure = getEnvBool("XMEMORY_COOKIE_SECURE", cfg.Session.CookieSecure)

	cfg.Security.RateLimit = getEnvFloat("XMEMORY_RATE_LIMIT", cfg.Security.RateLimit)
	cfg.Security.RateBurst = getEnvInt("XMEMORY_RATE_BURST", cfg.Security.RateBurst)

	cfg.Log.Level = getEnv("XMEMORY_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Development = getEnvBool("XMEMORY_LOG_DEVELOPMENT", cfg.Log.Development)

	cfg.UI.PageSize = getEnvInt("XMEMORY_PAGE_SIZE", cfg.UI.PageSize)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("15s", "2m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
