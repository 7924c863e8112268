// Package config provides configuration loading for mcpcore.
//
// Configuration is loaded from environment variables and an optional YAML
// file, with sensible defaults. This package supports transport, auth,
// security, and metrics settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete mcpcore configuration.
type Config struct {
	Production ProductionConfig
	Server     ServerConfig
	Transport  TransportConfig
	Auth       AuthConfig
	Security   SecurityConfig
	Metrics    MetricsConfig
	Logging    LoggingTopLevelConfig
}

// LoggingTopLevelConfig is the koanf anchor for the logging subtree; the
// logging package owns its own Config type and unmarshals into it directly.
type LoggingTopLevelConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ServerConfig holds HTTP envelope server configuration, used only when the
// httpenv transport is selected.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TransportConfig selects and configures the active transport.
type TransportConfig struct {
	// Kind selects the transport implementation: "stdio" or "http".
	Kind string `koanf:"kind"`

	// MaxMessageSize caps a single inbound message, in bytes, before it is
	// rejected with InvalidRequest. Zero selects the transport's own
	// default (10 MiB for stdio).
	MaxMessageSize int `koanf:"max_message_size"`

	// ConcurrentBatch, when true, lets batch requests within one inbound
	// JSON-RPC batch dispatch concurrently when the backend opts in.
	ConcurrentBatch bool `koanf:"concurrent_batch"`
}

// AuthConfig configures the auth manager and its middleware.
type AuthConfig struct {
	// Enabled turns on credential extraction and validation. When false,
	// every request is treated as anonymous.
	Enabled bool `koanf:"enabled"`

	// MasterKeyEnvVar names the environment variable holding the master
	// key used to encrypt the on-disk API key store.
	MasterKeyEnvVar string `koanf:"master_key_env_var"`

	// StorageBackend selects "file", "memory", or "env".
	StorageBackend string `koanf:"storage_backend"`

	// KeyStorePath is the encrypted key store location (file backend only).
	KeyStorePath string `koanf:"key_store_path"`

	// JWT configures bearer-token issuance and validation.
	JWT JWTConfig `koanf:"jwt"`

	// Lockout configures the sliding-window failed-attempt lockout.
	Lockout LockoutConfig `koanf:"lockout"`

	// CacheSize bounds the LRU cache of recently validated credentials.
	CacheSize int `koanf:"cache_size"`

	// DevDefaultKey, when set, is accepted as a fallback stdio credential
	// with a logged warning. Never set this outside local development.
	DevDefaultKey Secret `koanf:"dev_default_key"`

	// AllowProcessArgsCredential permits extracting a credential from the
	// process's own argv for stdio transports that cannot set env vars.
	AllowProcessArgsCredential bool `koanf:"allow_process_args_credential"`
}

// JWTConfig configures HMAC-SHA256 JWT issuance and validation.
type JWTConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Secret   Secret        `koanf:"secret"`
	Issuer   string        `koanf:"issuer"`
	Audience string        `koanf:"audience"`
	TTL      time.Duration `koanf:"ttl"`
}

// LockoutConfig configures the per-key sliding-window failed-attempt lockout.
type LockoutConfig struct {
	MaxFailedAttempts int           `koanf:"max_failed_attempts"`
	Window            time.Duration `koanf:"window"`
	BlockDuration     time.Duration `koanf:"block_duration"`
}

// SecurityConfig configures pre-auth request validation.
type SecurityConfig struct {
	MaxMessageSize int `koanf:"max_message_size"`
	MaxMethodLen   int `koanf:"max_method_len"`
	MaxParamDepth  int `koanf:"max_param_depth"`
	MaxParamNodes  int `koanf:"max_param_nodes"`
	Sanitize       bool `koanf:"sanitize"`
}

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// ProductionConfig holds production deployment configuration.
type ProductionConfig struct {
	// Enabled indicates whether production mode is active.
	// Set via MCPCORE_PRODUCTION_MODE=1 environment variable.
	Enabled bool `koanf:"enabled"`

	// LocalModeAcknowledged allows development features in production mode.
	// Set via MCPCORE_LOCAL_MODE=1 environment variable.
	// Use only for local development/testing.
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`

	// RequireAuthentication enforces authentication in production.
	RequireAuthentication bool `koanf:"require_authentication"`

	// AuthenticationConfigured indicates if auth is properly set up.
	AuthenticationConfigured bool `koanf:"authentication_configured"`

	// RequireTLS enforces TLS for the HTTP transport in production.
	RequireTLS bool `koanf:"require_tls"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// IsLocal returns true if local mode is acknowledged.
func (c *ProductionConfig) IsLocal() bool {
	return c.LocalModeAcknowledged
}

// Validate checks production configuration for security issues.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequireAuthentication && !c.AuthenticationConfigured {
		return fmt.Errorf("SECURITY: RequireAuthentication enabled but authentication not configured")
	}
	return nil
}

// Load loads configuration from environment variables with defaults.
//
// Quick start - most commonly configured env vars:
//
//   - MCPCORE_TRANSPORT_KIND: "stdio" (default) or "http"
//   - MCPCORE_AUTH_ENABLED: require credentials on every non-anonymous method (default: false)
//   - PULSEENGINE_MCP_MASTER_KEY: master key for the encrypted API key store
//   - MCPCORE_PRODUCTION_MODE: enable production safety checks (default: false)
//
// All environment variables:
//
// Server (http transport only):
//   - SERVER_PORT: HTTP listener port (default: 9090)
//   - SERVER_SHUTDOWN_TIMEOUT: graceful shutdown timeout (default: 10s)
//
// Transport:
//   - MCPCORE_TRANSPORT_KIND: "stdio" or "http" (default: stdio)
//   - MCPCORE_TRANSPORT_MAX_MESSAGE_SIZE: per-message byte cap (default: transport-specific)
//   - MCPCORE_TRANSPORT_CONCURRENT_BATCH: dispatch batch requests concurrently (default: false)
//
// Auth:
//   - MCPCORE_AUTH_ENABLED: require authentication (default: false)
//   - MCPCORE_AUTH_STORAGE_BACKEND: "file", "memory", or "env" (default: memory)
//   - MCPCORE_AUTH_KEY_STORE_PATH: encrypted key store path (default: ~/.config/mcpcore/keys.enc)
//   - PULSEENGINE_MCP_MASTER_KEY: master key for the encrypted key store
//   - MCPCORE_AUTH_JWT_ENABLED: accept JWT bearer tokens (default: false)
//   - MCPCORE_AUTH_JWT_ISSUER, MCPCORE_AUTH_JWT_AUDIENCE, MCPCORE_AUTH_JWT_TTL
//   - MCPCORE_AUTH_LOCKOUT_MAX_FAILED_ATTEMPTS (default: 5)
//   - MCPCORE_AUTH_LOCKOUT_WINDOW (default: 5m)
//   - MCPCORE_AUTH_LOCKOUT_BLOCK_DURATION (default: 15m)
//   - MCPCORE_AUTH_CACHE_SIZE (default: 1024)
//
// Security:
//   - MCPCORE_SECURITY_MAX_MESSAGE_SIZE (default: 10485760)
//   - MCPCORE_SECURITY_MAX_METHOD_LEN (default: 128)
//   - MCPCORE_SECURITY_MAX_PARAM_DEPTH (default: 32)
//   - MCPCORE_SECURITY_MAX_PARAM_NODES (default: 10000)
//   - MCPCORE_SECURITY_SANITIZE (default: true)
//
// Metrics:
//   - MCPCORE_METRICS_ENABLED (default: false)
//   - MCPCORE_METRICS_ADDR (default: :9464)
//
// Example:
//
//	cfg := config.Load()
//	fmt.Println("transport:", cfg.Transport.Kind)
func Load() *Config {
	cfg := &Config{
		Production: ProductionConfig{
			Enabled:               getEnvBool("MCPCORE_PRODUCTION_MODE", false),
			LocalModeAcknowledged: getEnvBool("MCPCORE_LOCAL_MODE", false),
			RequireAuthentication: getEnvBool("MCPCORE_REQUIRE_AUTH", false),
			RequireTLS:            getEnvBool("MCPCORE_REQUIRE_TLS", false),
		},
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 9090),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Transport: TransportConfig{
			Kind:            getEnvString("MCPCORE_TRANSPORT_KIND", "stdio"),
			MaxMessageSize:  getEnvInt("MCPCORE_TRANSPORT_MAX_MESSAGE_SIZE", 0),
			ConcurrentBatch: getEnvBool("MCPCORE_TRANSPORT_CONCURRENT_BATCH", false),
		},
		Auth: AuthConfig{
			Enabled:         getEnvBool("MCPCORE_AUTH_ENABLED", false),
			MasterKeyEnvVar: getEnvString("MCPCORE_AUTH_MASTER_KEY_ENV_VAR", "PULSEENGINE_MCP_MASTER_KEY"),
			StorageBackend:  getEnvString("MCPCORE_AUTH_STORAGE_BACKEND", "memory"),
			KeyStorePath:    getEnvString("MCPCORE_AUTH_KEY_STORE_PATH", "~/.config/mcpcore/keys.enc"),
			JWT: JWTConfig{
				Enabled:  getEnvBool("MCPCORE_AUTH_JWT_ENABLED", false),
				Secret:   Secret(os.Getenv("MCPCORE_AUTH_JWT_SECRET")),
				Issuer:   getEnvString("MCPCORE_AUTH_JWT_ISSUER", "mcpcore"),
				Audience: getEnvString("MCPCORE_AUTH_JWT_AUDIENCE", "mcpcore-clients"),
				TTL:      getEnvDuration("MCPCORE_AUTH_JWT_TTL", time.Hour),
			},
			Lockout: LockoutConfig{
				MaxFailedAttempts: getEnvInt("MCPCORE_AUTH_LOCKOUT_MAX_FAILED_ATTEMPTS", 5),
				Window:            getEnvDuration("MCPCORE_AUTH_LOCKOUT_WINDOW", 5*time.Minute),
				BlockDuration:     getEnvDuration("MCPCORE_AUTH_LOCKOUT_BLOCK_DURATION", 15*time.Minute),
			},
			CacheSize:                  getEnvInt("MCPCORE_AUTH_CACHE_SIZE", 1024),
			DevDefaultKey:              Secret(os.Getenv("MCPCORE_AUTH_DEV_DEFAULT_KEY")),
			AllowProcessArgsCredential: getEnvBool("MCPCORE_AUTH_ALLOW_PROCESS_ARGS_CREDENTIAL", false),
		},
		Security: SecurityConfig{
			MaxMessageSize: getEnvInt("MCPCORE_SECURITY_MAX_MESSAGE_SIZE", 10*1024*1024),
			MaxMethodLen:   getEnvInt("MCPCORE_SECURITY_MAX_METHOD_LEN", 128),
			MaxParamDepth:  getEnvInt("MCPCORE_SECURITY_MAX_PARAM_DEPTH", 32),
			MaxParamNodes:  getEnvInt("MCPCORE_SECURITY_MAX_PARAM_NODES", 10000),
			Sanitize:       getEnvBool("MCPCORE_SECURITY_SANITIZE", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("MCPCORE_METRICS_ENABLED", false),
			Addr:    getEnvString("MCPCORE_METRICS_ADDR", ":9464"),
		},
		Logging: LoggingTopLevelConfig{
			Level:  getEnvString("MCPCORE_LOGGING_LEVEL", "info"),
			Format: getEnvString("MCPCORE_LOGGING_FORMAT", "json"),
		},
	}

	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Transport.Kind != "stdio" && c.Transport.Kind != "http" {
		return fmt.Errorf("invalid MCPCORE_TRANSPORT_KIND: %q (must be 'stdio' or 'http')", c.Transport.Kind)
	}

	if c.Transport.Kind == "http" {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
		}
		if c.Server.ShutdownTimeout <= 0 {
			return errors.New("shutdown timeout must be positive")
		}
	}

	switch c.Auth.StorageBackend {
	case "file", "memory", "env":
	default:
		return fmt.Errorf("invalid MCPCORE_AUTH_STORAGE_BACKEND: %q (must be 'file', 'memory', or 'env')", c.Auth.StorageBackend)
	}

	if c.Auth.StorageBackend == "file" {
		if err := validatePath(c.Auth.KeyStorePath); err != nil {
			return fmt.Errorf("invalid MCPCORE_AUTH_KEY_STORE_PATH: %w", err)
		}
	}

	if c.Auth.JWT.Enabled && c.Auth.JWT.Secret.Value() == "" {
		return errors.New("MCPCORE_AUTH_JWT_SECRET is required when JWT is enabled")
	}

	if c.Auth.Lockout.MaxFailedAttempts < 1 {
		return errors.New("MCPCORE_AUTH_LOCKOUT_MAX_FAILED_ATTEMPTS must be >= 1")
	}

	if c.Security.MaxMessageSize <= 0 {
		return errors.New("MCPCORE_SECURITY_MAX_MESSAGE_SIZE must be positive")
	}

	if err := c.Production.Validate(); err != nil {
		return fmt.Errorf("production config validation failed: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

// validatePath checks if a path is safe (no path traversal).
func validatePath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	if filepath.IsAbs(path) {
		clean := filepath.Clean(path)
		origDepth := strings.Count(path, string(filepath.Separator))
		cleanDepth := strings.Count(clean, string(filepath.Separator))
		if cleanDepth < origDepth-1 {
			return fmt.Errorf("path traversal detected: %s (resolves to %s)", path, clean)
		}
	}
	return nil
}

