// Package config provides configuration loading for mcpcore.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (TRANSPORT_KIND, AUTH_ENABLED, SERVER_HTTP_PORT, etc.)
//  2. YAML config file (~/.config/mcpcore/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, uses
// the default path: ~/.config/mcpcore/config.yaml
//
// # Security Considerations
//
// File Permissions: Configuration file MUST have 0600 permissions (owner
// read/write only). Files with weaker permissions are rejected.
//
// Path Validation: Only configuration files in allowed directories can be
// loaded:
//   - ~/.config/mcpcore/ (user's config directory)
//   - /etc/mcpcore/ (system-wide config directory)
//
// Absolute paths outside these directories are rejected to prevent path
// traversal attacks.
//
// File Size Limit: Configuration files larger than 1MB are rejected to
// prevent resource exhaustion attacks.
//
// # Environment Variable Mapping
//
// Environment variables use underscore separator and are uppercased.
// The transformer maps environment variables to YAML field names by
// splitting on the first underscore:
//
//	TRANSPORT_KIND -> transport.kind
//	SERVER_HTTP_PORT -> server.http_port
//	MCPCORE_TRANSPORT_KIND -> mcpcore.transport_kind
//
// Variables with the MCPCORE_ prefix therefore land under an "mcpcore" key
// that no Config field reads; of those, only MCPCORE_PRODUCTION_MODE and
// MCPCORE_LOCAL_MODE take effect here, read directly by applyDefaults.
//
// # Example
//
//	cfg, err := config.LoadWithFile("")  // Use default path
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "mcpcore", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}

		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Override with environment variables. Uppercased, underscore-separated;
	// split on the first underscore only (section_fieldname pattern).
	if err := k.Load(env.Provider("", ".", func(s string) string {
		lower := strings.ToLower(s)
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the mcpcore config directory if it doesn't exist.
// The directory is created with 0700 permissions (owner read/write/execute only).
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "mcpcore")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Allows validation of paths that don't exist yet.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "mcpcore"),
		"/etc/mcpcore",
	}

	allowed := false
	for _, dir := range allowedDirs {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			allowed = true
			break
		}
	}

	if !allowed {
		return fmt.Errorf("config file must be in ~/.config/mcpcore/ or /etc/mcpcore/")
	}

	return nil
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU races.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	cfg.Production = loadProductionConfig()

	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "stdio"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Auth.StorageBackend == "" {
		cfg.Auth.StorageBackend = "memory"
	}
	if cfg.Auth.MasterKeyEnvVar == "" {
		cfg.Auth.MasterKeyEnvVar = "PULSEENGINE_MCP_MASTER_KEY"
	}
	if cfg.Auth.KeyStorePath == "" {
		cfg.Auth.KeyStorePath = "~/.config/mcpcore/keys.enc"
	}
	if cfg.Auth.JWT.Issuer == "" {
		cfg.Auth.JWT.Issuer = "mcpcore"
	}
	if cfg.Auth.JWT.Audience == "" {
		cfg.Auth.JWT.Audience = "mcpcore-clients"
	}
	if cfg.Auth.JWT.TTL == 0 {
		cfg.Auth.JWT.TTL = time.Hour
	}
	if cfg.Auth.Lockout.MaxFailedAttempts == 0 {
		cfg.Auth.Lockout.MaxFailedAttempts = 5
	}
	if cfg.Auth.Lockout.Window == 0 {
		cfg.Auth.Lockout.Window = 5 * time.Minute
	}
	if cfg.Auth.Lockout.BlockDuration == 0 {
		cfg.Auth.Lockout.BlockDuration = 15 * time.Minute
	}
	if cfg.Auth.CacheSize == 0 {
		cfg.Auth.CacheSize = 1024
	}

	if cfg.Security.MaxMessageSize == 0 {
		cfg.Security.MaxMessageSize = 10 * 1024 * 1024
	}
	if cfg.Security.MaxMethodLen == 0 {
		cfg.Security.MaxMethodLen = 128
	}
	if cfg.Security.MaxParamDepth == 0 {
		cfg.Security.MaxParamDepth = 32
	}
	if cfg.Security.MaxParamNodes == 0 {
		cfg.Security.MaxParamNodes = 10000
	}

	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9464"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// loadProductionConfig loads production configuration from environment variables.
func loadProductionConfig() ProductionConfig {
	prodMode := os.Getenv("MCPCORE_PRODUCTION_MODE") == "1"
	localMode := os.Getenv("MCPCORE_LOCAL_MODE") == "1"

	return ProductionConfig{
		Enabled:               prodMode,
		LocalModeAcknowledged: localMode,
		RequireAuthentication: prodMode && !localMode,
		RequireTLS:            prodMode && !localMode,
	}
}
