package auth

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
)

// Credential is a raw bearer value pulled off a transport, tagged with
// where it came from so callers can apply source-specific policy (e.g.
// logging a warning when a dev-default key authenticates a request).
type Credential struct {
	Value    string
	Source   string // "bearer", "api_key_header", "env", "init_params", "process_args", "dev_default"
	IsJWT    bool
	ClientIP string // empty when the transport has no network peer address (e.g. stdio)
}

// AnonymousMethods lists method names the auth middleware lets through
// without a credential.
var AnonymousMethods = map[string]bool{
	"initialize": true,
	"ping":       true,
}

// ExtractHTTPCredential implements the HTTP/WS half of §4.10: bearer
// token or X-API-Key header.
func ExtractHTTPCredential(headers map[string]string) *Credential {
	if auth := headers["Authorization"]; auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok && rest != "" {
			return &Credential{Value: rest, Source: "bearer", IsJWT: looksLikeJWT(rest)}
		}
	}
	if key := headers["X-Api-Key"]; key != "" {
		return &Credential{Value: key, Source: "api_key_header"}
	}
	return nil
}

func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2 && !strings.HasPrefix(s, "mcp_")
}

// StdioExtractorConfig controls which stdio credential sources are
// consulted and in what order, per §4.10.
type StdioExtractorConfig struct {
	EnvVar             string
	AllowInitParams    bool
	AllowProcessArgs   bool
	DevDefaultKey      string
}

// StdioExtractor resolves a credential from the process environment, the
// MCP initialize params, process arguments, or a development default, in
// that fallback order.
type StdioExtractor struct {
	cfg    StdioExtractorConfig
	logger *logging.Logger
}

func NewStdioExtractor(cfg StdioExtractorConfig, logger *logging.Logger) *StdioExtractor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StdioExtractor{cfg: cfg, logger: logger.Named("auth.stdio")}
}

// ExtractFromEnv checks the configured environment variable.
func (e *StdioExtractor) ExtractFromEnv() *Credential {
	if e.cfg.EnvVar == "" {
		return nil
	}
	if v := os.Getenv(e.cfg.EnvVar); v != "" {
		return &Credential{Value: v, Source: "env"}
	}
	return nil
}

// ExtractFromInitParams looks for an API key nested in initialize params
// at any of the three locations the original MCP clients have used:
// params.api_key, params.clientInfo.api_key, or
// params.clientInfo.capabilities.authentication.api_key.
func (e *StdioExtractor) ExtractFromInitParams(rawParams json.RawMessage) *Credential {
	if !e.cfg.AllowInitParams || len(rawParams) == 0 {
		return nil
	}
	var params map[string]interface{}
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil
	}
	if key, ok := stringField(params, "api_key"); ok {
		return &Credential{Value: key, Source: "init_params"}
	}
	clientInfo, _ := params["clientInfo"].(map[string]interface{})
	if clientInfo != nil {
		if key, ok := stringField(clientInfo, "api_key"); ok {
			return &Credential{Value: key, Source: "init_params"}
		}
		if caps, ok := clientInfo["capabilities"].(map[string]interface{}); ok {
			if key, ok := authAPIKey(caps); ok {
				return &Credential{Value: key, Source: "init_params"}
			}
		}
	}
	return nil
}

func authAPIKey(capabilities map[string]interface{}) (string, bool) {
	auth, ok := capabilities["authentication"].(map[string]interface{})
	if !ok {
		return "", false
	}
	return stringField(auth, "api_key")
}

func stringField(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok && v != ""
}

// ExtractFromProcessArgs scans os.Args for --api-key VALUE or
// --api-key=VALUE. Disabled by default: process args are visible to
// every other process on the host via /proc or ps.
func (e *StdioExtractor) ExtractFromProcessArgs() *Credential {
	if !e.cfg.AllowProcessArgs {
		return nil
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--api-key" && i+1 < len(args) {
			return &Credential{Value: args[i+1], Source: "process_args"}
		}
		if rest, ok := strings.CutPrefix(arg, "--api-key="); ok {
			return &Credential{Value: rest, Source: "process_args"}
		}
	}
	return nil
}

// ExtractDevDefault returns the configured development fallback key, if
// any, and logs a warning since it authenticates every caller identically.
func (e *StdioExtractor) ExtractDevDefault() *Credential {
	if e.cfg.DevDefaultKey == "" {
		return nil
	}
	e.logger.Warn(context.Background(), "stdio transport authenticating via development default key; do not use in production")
	return &Credential{Value: e.cfg.DevDefaultKey, Source: "dev_default"}
}

// Extract runs the full fallback chain for a given initialize-params
// payload (nil when the current request isn't initialize).
func (e *StdioExtractor) Extract(rawParams json.RawMessage) *Credential {
	if c := e.ExtractFromEnv(); c != nil {
		return c
	}
	if c := e.ExtractFromInitParams(rawParams); c != nil {
		return c
	}
	if c := e.ExtractFromProcessArgs(); c != nil {
		return c
	}
	return e.ExtractDevDefault()
}
