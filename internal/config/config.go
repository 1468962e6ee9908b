// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	FTP       FTPConfig
	Storage   StorageConfig
	Download  DownloadConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"90s"`
}

// DatabaseConfig holds the optional rejection log database.
// When URL is empty, rejections are only written to the error log file.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a rejection log database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// FTPConfig holds default remote server credentials.
// Connections can also be opened at runtime with explicit credentials.
type FTPConfig struct {
	Host     string `env:"FTP_HOST"`
	User     string `env:"FTP_USER" default:"anonymous"`
	Password string `env:"FTP_PASSWORD"`

	// DialTimeout bounds connection setup (default: 10s)
	DialTimeout time.Duration `env:"FTP_DIAL_TIMEOUT" default:"10s"`
}

// StorageConfig holds local directories for accepted files and the error log.
type StorageConfig struct {
	// ValidDir receives accepted files (default: valid_files)
	ValidDir string `env:"VALID_DIR" default:"valid_files"`

	// ErrorLogDir holds the rejection log file (default: error_logs)
	ErrorLogDir string `env:"ERROR_LOG_DIR" default:"error_logs"`

	// ErrorLogFile is the rejection log file name inside ErrorLogDir (default: error_log.txt)
	ErrorLogFile string `env:"ERROR_LOG_FILE" default:"error_log.txt"`

	// FilePrefix is prepended to stored file names (default: MED_DATA_)
	FilePrefix string `env:"VALID_FILE_PREFIX" default:"MED_DATA_"`
}

// DownloadConfig holds remote file processing settings.
type DownloadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"DOWNLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parallel downloads (default: 2)
	MaxConcurrent int `env:"DOWNLOAD_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a download slot (default: 30s)
	MaxWaitTime time.Duration `env:"DOWNLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single download (default: 5m)
	Timeout time.Duration `env:"DOWNLOAD_TIMEOUT" default:"5m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig controls purging of database rejection records.
type RetentionConfig struct {
	// Days is how long rejection records are kept (default: 90)
	Days int `env:"REJECTION_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often the purge job runs (default: 24h)
	CheckInterval time.Duration `env:"REJECTION_RETENTION_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
