// Package config loads the import service configuration from environment
// variables, applies defaults, and validates everything on startup.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Sink       SinkConfig
	Import     ImportConfig
	Store      StoreConfig
	Schema     SchemaConfig
	Permission PermissionConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the Postgres sink connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres sink.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// Schema is the Postgres schema target tables live in (default: public)
	Schema string `env:"DB_SCHEMA" default:"public"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SinkConfig selects where validated rows are written.
type SinkConfig struct {
	// Kind is postgres or remote (default: postgres)
	Kind string `env:"SINK_KIND" default:"postgres"`

	// RemoteURL is the base URL of the remote import service
	RemoteURL string `env:"SINK_REMOTE_URL"`

	// RemoteToken is sent as a bearer token to the remote import service
	RemoteToken string `env:"SINK_REMOTE_TOKEN"`

	// Timeout bounds each remote call (default: 30s)
	Timeout time.Duration `env:"SINK_TIMEOUT" default:"30s"`
}

// ImportConfig holds import pipeline limits.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted upload in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxRows caps the rows read from one file (default: 1000000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"1000000"`

	// BatchSize is the number of rows sent to the sink per batch (default: 1000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" envAlt:"UPLOAD_BATCH_SIZE" default:"1000"`

	// MaxConcurrent is the number of imports writing at once (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" envAlt:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// SlotWait is how long a job waits for a write slot (default: 30s)
	SlotWait time.Duration `env:"IMPORT_SLOT_WAIT" default:"30s"`

	// PollInterval is how often an asynchronous sink job is polled (default: 2s)
	PollInterval time.Duration `env:"IMPORT_POLL_INTERVAL" default:"2s"`

	// MaxPollFailures is the number of consecutive poll errors tolerated (default: 5)
	MaxPollFailures int `env:"IMPORT_MAX_POLL_FAILURES" default:"5"`

	// MaxRetries is how many times one import may be retried (default: 3)
	MaxRetries int `env:"IMPORT_MAX_RETRIES" default:"3"`

	// JobRetention is how long finished jobs stay in memory (default: 1h)
	JobRetention time.Duration `env:"IMPORT_JOB_RETENTION" default:"1h"`
}

// StoreConfig holds the import history store settings.
type StoreConfig struct {
	// Path is the SQLite file for import history (default: imports.db)
	Path string `env:"STORE_PATH" default:"imports.db"`

	// RetentionDays is how long history is kept (default: 90)
	RetentionDays int `env:"STORE_RETENTION_DAYS" default:"90"`

	// PurgeInterval is how often expired history is removed (default: 24h)
	PurgeInterval time.Duration `env:"STORE_PURGE_INTERVAL" default:"24h"`
}

// SchemaConfig locates additional table schemas.
type SchemaConfig struct {
	// Dir holds YAML table definitions loaded after the built-in tables
	Dir string `env:"SCHEMA_DIR"`
}

// PermissionConfig holds the permission store settings and the policy used
// for actors without a stored grant.
type PermissionConfig struct {
	// Driver is postgres or sqlite (default: sqlite)
	Driver string `env:"PERMISSION_DRIVER" default:"sqlite"`

	// DSN is the permission database (default: permissions.db)
	DSN string `env:"PERMISSION_DSN" default:"permissions.db"`

	// DefaultCanImport allows imports for actors without a grant (default: false)
	DefaultCanImport bool `env:"PERMISSION_DEFAULT_IMPORT" default:"false"`

	// DefaultCanValidate allows validation for actors without a grant (default: true)
	DefaultCanValidate bool `env:"PERMISSION_DEFAULT_VALIDATE" default:"true"`

	// DefaultCanPreview allows previews for actors without a grant (default: true)
	DefaultCanPreview bool `env:"PERMISSION_DEFAULT_PREVIEW" default:"true"`

	// DefaultCanApprove lets actors without a grant approve held imports (default: false)
	DefaultCanApprove bool `env:"PERMISSION_DEFAULT_APPROVE" default:"false"`

	// DefaultRequireApproval holds default imports for approval (default: false)
	DefaultRequireApproval bool `env:"PERMISSION_DEFAULT_REQUIRE_APPROVAL" default:"false"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerSecond is the sustained rate per client IP (default: 10)
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" default:"10"`

	// Burst is the bucket size per client IP (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enforces the X-API-Key header on API routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// JWTSecret verifies HS256 bearer tokens that carry the acting user
	JWTSecret string `env:"JWT_SECRET"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DefaultPermission is the policy for actors without a stored grant, bounded
// by the import limits.
func (c *Config) DefaultPermission() core.Permission {
	return core.Permission{
		CanImport:       c.Permission.DefaultCanImport,
		CanValidate:     c.Permission.DefaultCanValidate,
		CanPreview:      c.Permission.DefaultCanPreview,
		CanApprove:      c.Permission.DefaultCanApprove,
		RequireApproval: c.Permission.DefaultRequireApproval,
		MaxFileSize:     c.Import.MaxFileSize,
		MaxRows:         c.Import.MaxRows,
	}
}
