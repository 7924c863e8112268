// Package security implements the pre-auth request validator: size
// caps, envelope shape, method-name charset, and parameter-depth limits.
package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"unicode"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// methodNamePattern matches the MCP method-name grammar: ASCII
// identifiers (letters of either case, digits, '_') joined by '/', generalized from internal/sanitize's
// identifier regex to allow the '/' namespace separator methods use
// (tools/list, resources/read, ...).
var methodNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(/[a-zA-Z][a-zA-Z0-9_]*)*$`)

// ViolationSink receives a record of every rejected request so the
// metrics collector can count them without the validator depending on
// the metrics package directly.
type ViolationSink interface {
	RecordViolation(kind string)
}

// Config bounds what a Validator accepts.
type Config struct {
	MaxMessageSize int
	MaxMethodLen   int
	MaxParamDepth  int
	MaxParamNodes  int
}

// DefaultConfig matches spec §4.7/§5's defaults.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 10 * 1024 * 1024,
		MaxMethodLen:   128,
		MaxParamDepth:  32,
		MaxParamNodes:  10000,
	}
}

// Validator runs before authentication in the middleware pipeline.
type Validator struct {
	cfg   Config
	sink  ViolationSink
}

// NewValidator builds a Validator. A nil sink disables violation metrics.
func NewValidator(cfg Config, sink ViolationSink) *Validator {
	return &Validator{cfg: cfg, sink: sink}
}

func (v *Validator) violation(kind string) {
	if v.sink != nil {
		v.sink.RecordViolation(kind)
	}
}

// ValidateSize rejects a raw message exceeding the configured cap,
// returning the MCP error with the offending size and limit as
// structured data.
func (v *Validator) ValidateSize(raw []byte) *protocol.Error {
	if v.cfg.MaxMessageSize > 0 && len(raw) > v.cfg.MaxMessageSize {
		v.violation("size_exceeded")
		return protocol.NewErrorWithData(
			protocol.InvalidRequest,
			fmt.Sprintf("Message exceeds maximum size of %d bytes", v.cfg.MaxMessageSize),
			map[string]interface{}{"size": len(raw), "max": v.cfg.MaxMessageSize},
		)
	}
	return nil
}

// ValidateMethod enforces method-name length and character set,
// rejecting control characters and anything outside the MCP namespace
// grammar.
func (v *Validator) ValidateMethod(method string) *protocol.Error {
	if method == "" {
		v.violation("empty_method")
		return protocol.NewError(protocol.InvalidRequest, "method must not be empty")
	}
	if v.cfg.MaxMethodLen > 0 && len(method) > v.cfg.MaxMethodLen {
		v.violation("method_too_long")
		return protocol.NewError(protocol.InvalidRequest, fmt.Sprintf("method exceeds maximum length of %d", v.cfg.MaxMethodLen))
	}
	for _, r := range method {
		if unicode.IsControl(r) {
			v.violation("method_control_char")
			return protocol.NewError(protocol.InvalidRequest, "method contains control characters")
		}
	}
	if !methodNamePattern.MatchString(method) {
		v.violation("method_bad_charset")
		return protocol.NewError(protocol.InvalidRequest, "method contains disallowed characters")
	}
	return nil
}

// ValidateParams bounds the decoded JSON params' recursion depth and
// total node count, defending against pathological payloads that are
// well within the byte-size cap but expensive to walk.
func (v *Validator) ValidateParams(raw json.RawMessage) *protocol.Error {
	if len(raw) == 0 {
		return nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil // malformed params are the codec's concern, not ours
	}

	nodes := 0
	depth := countDepthAndNodes(value, 0, &nodes)

	if v.cfg.MaxParamDepth > 0 && depth > v.cfg.MaxParamDepth {
		v.violation("param_depth_exceeded")
		return protocol.NewErrorWithData(
			protocol.InvalidRequest,
			fmt.Sprintf("params exceed maximum depth of %d", v.cfg.MaxParamDepth),
			map[string]interface{}{"depth": depth, "max": v.cfg.MaxParamDepth},
		)
	}
	if v.cfg.MaxParamNodes > 0 && nodes > v.cfg.MaxParamNodes {
		v.violation("param_nodes_exceeded")
		return protocol.NewErrorWithData(
			protocol.InvalidRequest,
			fmt.Sprintf("params exceed maximum node count of %d", v.cfg.MaxParamNodes),
			map[string]interface{}{"nodes": nodes, "max": v.cfg.MaxParamNodes},
		)
	}
	return nil
}

func countDepthAndNodes(v interface{}, depth int, nodes *int) int {
	*nodes++
	switch t := v.(type) {
	case map[string]interface{}:
		maxChild := depth
		for _, child := range t {
			if d := countDepthAndNodes(child, depth+1, nodes); d > maxChild {
				maxChild = d
			}
		}
		return maxChild
	case []interface{}:
		maxChild := depth
		for _, child := range t {
			if d := countDepthAndNodes(child, depth+1, nodes); d > maxChild {
				maxChild = d
			}
		}
		return maxChild
	default:
		return depth
	}
}

// ValidateRequest runs every check against a decoded request's raw
// inputs. raw is the full wire message used for the size check; method
// and params come from the already-parsed envelope.
func (v *Validator) ValidateRequest(raw []byte, method string, params json.RawMessage) *protocol.Error {
	if err := v.ValidateSize(raw); err != nil {
		return err
	}
	if err := v.ValidateMethod(method); err != nil {
		return err
	}
	return v.ValidateParams(params)
}
