package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/mcpcore/internal/config"
	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/auth"
	"github.com/fyrsmithlabs/mcpcore/pkg/metrics"
)

func loadConfig() (*config.Config, error) {
	return config.LoadWithFile(configPath)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Format = cfg.Logging.Format
	if level, err := logging.LevelFromString(cfg.Logging.Level); err == nil {
		logCfg.Level = level
	}
	return logging.NewLogger(logCfg)
}

func buildMetrics(cfg *config.Config) metrics.Collector {
	if !cfg.Metrics.Enabled {
		return metrics.Noop
	}
	return metrics.NewPromCollector("mcpcore")
}

func buildAuthStorage(cfg *config.Config) (auth.StorageBackend, error) {
	switch cfg.Auth.StorageBackend {
	case "memory":
		return auth.NewMemoryStore(), nil
	case "env":
		return auth.NewEnvStore("MCPCORE_KEY_"), nil
	case "file":
		masterKeyB64 := os.Getenv(cfg.Auth.MasterKeyEnvVar)
		if masterKeyB64 == "" {
			return nil, fmt.Errorf("%s must be set to a base64-encoded 32-byte key for the file storage backend", cfg.Auth.MasterKeyEnvVar)
		}
		masterKey, err := base64.StdEncoding.DecodeString(masterKeyB64)
		if err != nil {
			return nil, fmt.Errorf("%s is not valid base64: %w", cfg.Auth.MasterKeyEnvVar, err)
		}
		return auth.NewFileStore(auth.FileStoreConfig{
			Path:                    cfg.Auth.KeyStorePath,
			MasterKey:               masterKey,
			RequireSecureFilesystem: true,
		})
	default:
		return nil, fmt.Errorf("unknown auth storage backend: %q", cfg.Auth.StorageBackend)
	}
}

func buildAuthManager(cfg *config.Config, logger *logging.Logger, audit auth.AuditSink) (*auth.Manager, error) {
	storage, err := buildAuthStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("building auth storage: %w", err)
	}
	return auth.NewManager(auth.ManagerConfig{
		Storage: storage,
		Lockout: auth.LockoutPolicy{
			MaxFailedAttempts: cfg.Auth.Lockout.MaxFailedAttempts,
			Window:            cfg.Auth.Lockout.Window,
			BlockDuration:     cfg.Auth.Lockout.BlockDuration,
		},
		CacheSize: cfg.Auth.CacheSize,
		JWT: auth.JWTConfig{
			Enabled:  cfg.Auth.JWT.Enabled,
			Secret:   cfg.Auth.JWT.Secret.Value(),
			Issuer:   cfg.Auth.JWT.Issuer,
			Audience: cfg.Auth.JWT.Audience,
			TTL:      cfg.Auth.JWT.TTL,
		},
		AuditSink: audit,
	}, logger)
}

func roleForName(name string) (auth.Role, error) {
	switch name {
	case "admin":
		return auth.AdminRole(), nil
	case "operator":
		return auth.OperatorRole(), nil
	case "monitor":
		return auth.MonitorRole(), nil
	case "":
		return auth.Role{}, fmt.Errorf("role must not be empty")
	default:
		return auth.CustomRole(nil), nil
	}
}
