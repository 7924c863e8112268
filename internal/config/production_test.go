package config

import (
	"os"
	"testing"
)

func TestProductionConfig_Defaults(t *testing.T) {
	// Clean up environment on test completion
	defer os.Unsetenv("MCPCORE_PRODUCTION_MODE")
	defer os.Unsetenv("MCPCORE_LOCAL_MODE")
	// Ensure clean starting state
	os.Unsetenv("MCPCORE_PRODUCTION_MODE")
	os.Unsetenv("MCPCORE_LOCAL_MODE")

	cfg := Load()

	if cfg.Production.Enabled {
		t.Error("Production.Enabled = true, want false (disabled by default)")
	}
}

func TestProductionConfig_EnabledViaEnv(t *testing.T) {
	defer os.Unsetenv("MCPCORE_PRODUCTION_MODE")
	os.Setenv("MCPCORE_PRODUCTION_MODE", "1")

	cfg := Load()

	if !cfg.Production.Enabled {
		t.Error("Production.Enabled = false, want true when MCPCORE_PRODUCTION_MODE=1")
	}
}
