package config

import (
	"os"
	"testing"
)

func TestLoad_ValidatesKeyStorePath(t *testing.T) {
	defer os.Unsetenv("MCPCORE_AUTH_STORAGE_BACKEND")
	defer os.Unsetenv("MCPCORE_AUTH_KEY_STORE_PATH")

	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			os.Setenv("MCPCORE_AUTH_STORAGE_BACKEND", "file")
			os.Setenv("MCPCORE_AUTH_KEY_STORE_PATH", path)
			cfg := Load()

			err := cfg.Validate()
			if err == nil {
				t.Errorf("expected validation error for path traversal: %s", path)
			}
		})
	}
}

func TestLoad_AllowsValidConfig(t *testing.T) {
	defer os.Unsetenv("MCPCORE_AUTH_STORAGE_BACKEND")
	defer os.Unsetenv("MCPCORE_AUTH_KEY_STORE_PATH")

	os.Setenv("MCPCORE_AUTH_STORAGE_BACKEND", "file")
	os.Setenv("MCPCORE_AUTH_KEY_STORE_PATH", "~/.config/mcpcore/keys.enc")

	cfg := Load()
	err := cfg.Validate()
	if err != nil {
		t.Errorf("valid configuration rejected: %v", err)
	}
}
