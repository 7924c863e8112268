package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	originalEnv := saveEnv()
	defer restoreEnv(originalEnv)

	tests := []struct {
		name     string
		env      map[string]string
		validate func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Transport.Kind != "stdio" {
					t.Errorf("Transport.Kind = %q, want stdio", cfg.Transport.Kind)
				}
				if cfg.Auth.Enabled {
					t.Error("Auth.Enabled = true, want false (disabled by default)")
				}
				if cfg.Auth.StorageBackend != "memory" {
					t.Errorf("Auth.StorageBackend = %q, want memory", cfg.Auth.StorageBackend)
				}
				if cfg.Auth.Lockout.MaxFailedAttempts != 5 {
					t.Errorf("Auth.Lockout.MaxFailedAttempts = %d, want 5", cfg.Auth.Lockout.MaxFailedAttempts)
				}
				if cfg.Security.MaxMessageSize != 10*1024*1024 {
					t.Errorf("Security.MaxMessageSize = %d, want 10MiB", cfg.Security.MaxMessageSize)
				}
				if !cfg.Security.Sanitize {
					t.Error("Security.Sanitize = false, want true")
				}
			},
		},
		{
			name: "environment variable overrides",
			env: map[string]string{
				"MCPCORE_TRANSPORT_KIND":    "http",
				"SERVER_PORT":               "8081",
				"SERVER_SHUTDOWN_TIMEOUT":   "5s",
				"MCPCORE_AUTH_ENABLED":      "true",
				"MCPCORE_AUTH_JWT_ENABLED":  "true",
				"MCPCORE_AUTH_JWT_SECRET":   "shh",
				"MCPCORE_AUTH_JWT_ISSUER":   "my-issuer",
				"MCPCORE_METRICS_ENABLED":   "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Transport.Kind != "http" {
					t.Errorf("Transport.Kind = %q, want http", cfg.Transport.Kind)
				}
				if cfg.Server.Port != 8081 {
					t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
				}
				if cfg.Server.ShutdownTimeout != 5*time.Second {
					t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
				}
				if !cfg.Auth.Enabled {
					t.Error("Auth.Enabled = false, want true")
				}
				if !cfg.Auth.JWT.Enabled {
					t.Error("Auth.JWT.Enabled = false, want true")
				}
				if cfg.Auth.JWT.Secret.Value() != "shh" {
					t.Errorf("Auth.JWT.Secret = %q, want shh", cfg.Auth.JWT.Secret.Value())
				}
				if cfg.Auth.JWT.Issuer != "my-issuer" {
					t.Errorf("Auth.JWT.Issuer = %q, want my-issuer", cfg.Auth.JWT.Issuer)
				}
				if !cfg.Metrics.Enabled {
					t.Error("Metrics.Enabled = false, want true")
				}
			},
		},
		{
			name: "lockout overrides",
			env: map[string]string{
				"MCPCORE_AUTH_LOCKOUT_MAX_FAILED_ATTEMPTS": "3",
				"MCPCORE_AUTH_LOCKOUT_WINDOW":              "1m",
				"MCPCORE_AUTH_LOCKOUT_BLOCK_DURATION":      "2m",
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Auth.Lockout.MaxFailedAttempts != 3 {
					t.Errorf("Auth.Lockout.MaxFailedAttempts = %d, want 3", cfg.Auth.Lockout.MaxFailedAttempts)
				}
				if cfg.Auth.Lockout.Window != time.Minute {
					t.Errorf("Auth.Lockout.Window = %v, want 1m", cfg.Auth.Lockout.Window)
				}
				if cfg.Auth.Lockout.BlockDuration != 2*time.Minute {
					t.Errorf("Auth.Lockout.BlockDuration = %v, want 2m", cfg.Auth.Lockout.BlockDuration)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg := Load()
			if cfg == nil {
				t.Fatal("Load() returned nil")
			}

			tt.validate(t, cfg)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	validBase := func() *Config {
		return &Config{
			Transport: TransportConfig{Kind: "stdio"},
			Auth: AuthConfig{
				StorageBackend: "memory",
				Lockout:        LockoutConfig{MaxFailedAttempts: 5},
			},
			Security: SecurityConfig{MaxMessageSize: 1024},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid transport kind", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, true},
		{"http requires valid port", func(c *Config) {
			c.Transport.Kind = "http"
			c.Server.Port = 0
			c.Server.ShutdownTimeout = time.Second
		}, true},
		{"http requires positive shutdown timeout", func(c *Config) {
			c.Transport.Kind = "http"
			c.Server.Port = 8080
			c.Server.ShutdownTimeout = 0
		}, true},
		{"invalid auth storage backend", func(c *Config) { c.Auth.StorageBackend = "s3" }, true},
		{"jwt enabled without secret", func(c *Config) {
			c.Auth.JWT.Enabled = true
		}, true},
		{"lockout threshold must be positive", func(c *Config) { c.Auth.Lockout.MaxFailedAttempts = 0 }, true},
		{"security max message size must be positive", func(c *Config) { c.Security.MaxMessageSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Helper functions to save/restore environment
func saveEnv() map[string]string {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		env[e] = os.Getenv(e)
	}
	return env
}

func restoreEnv(env map[string]string) {
	os.Clearenv()
	for k, v := range env {
		os.Setenv(k, v)
	}
}
