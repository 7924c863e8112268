// Package demobackend is a minimal tools-only Backend used by `mcpcore
// serve` so the binary is runnable without a host application wired in.
// It is scaffolding, not core behavior.
package demobackend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/server"
)

// EchoArgs is the tools/call argument shape for the "echo" tool.
type EchoArgs struct {
	Text string `json:"text" jsonschema:"the text to echo back"`
}

// TimeArgs is the (empty) argument shape for the "time" tool.
type TimeArgs struct{}

var echoSchema = mustSchema[EchoArgs]()
var timeSchema = mustSchema[TimeArgs]()

func mustSchema[T any]() json.RawMessage {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("demobackend: failed to derive schema: %v", err))
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("demobackend: failed to marshal schema: %v", err))
	}
	return raw
}

// Backend implements server.SimpleBackend with two illustrative tools:
// echo and time. now is overridable in tests.
type Backend struct {
	now func() time.Time
}

// New builds a ready-to-use demo Backend.
func New() *Backend {
	return &Backend{now: time.Now}
}

func (b *Backend) Initialize(ctx context.Context) error { return nil }

func (b *Backend) GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities) {
	return protocol.ServerInfo{Name: "mcpcore-demo", Version: "0.1.0"},
		protocol.ServerCapabilities{Tools: map[string]interface{}{}}
}

func (b *Backend) HealthCheck(ctx context.Context) server.HealthStatus {
	return server.HealthStatus{OK: true, Message: "demo backend ready"}
}

func (b *Backend) ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error) {
	return protocol.ToolsListResult{
		Tools: []protocol.Tool{
			{Name: "echo", Description: "Echo the given text back", InputSchema: echoSchema},
			{Name: "time", Description: "Return the current UTC time", InputSchema: timeSchema},
		},
	}, nil
}

func (b *Backend) CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error) {
	switch params.Name {
	case "echo":
		var args EchoArgs
		if len(params.Arguments) > 0 {
			if err := json.Unmarshal(params.Arguments, &args); err != nil {
				return protocol.ToolsCallResult{}, fmt.Errorf("invalid arguments for echo: %w", err)
			}
		}
		return protocol.ToolsCallResult{
			Content: []protocol.Content{{Type: "text", Text: args.Text}},
		}, nil
	case "time":
		now := b.now().UTC().Format(time.RFC3339)
		return protocol.ToolsCallResult{
			Content: []protocol.Content{{Type: "text", Text: now}},
		}, nil
	default:
		return protocol.ToolsCallResult{}, fmt.Errorf("unknown tool: %s", params.Name)
	}
}
