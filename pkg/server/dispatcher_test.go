package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

type stubBackend struct {
	Defaults
	tools []protocol.Tool
	err   error
}

func (b *stubBackend) Initialize(ctx context.Context) error { return nil }

func (b *stubBackend) GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities) {
	return protocol.ServerInfo{Name: "stub", Version: "0.0.1"},
		protocol.ServerCapabilities{Tools: map[string]interface{}{}}
}

func (b *stubBackend) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{OK: true}
}

func (b *stubBackend) ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error) {
	if b.err != nil {
		return protocol.ToolsListResult{}, b.err
	}
	return protocol.ToolsListResult{Tools: b.tools}, nil
}

func (b *stubBackend) CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error) {
	if params.Name == "" {
		return protocol.ToolsCallResult{}, protocol.NewError(protocol.InvalidParams, "name required")
	}
	return protocol.ToolsCallResult{Content: []protocol.Content{{Type: "text", Text: "ok"}}}, nil
}

func (b *stubBackend) ListResources(ctx context.Context, params protocol.ResourcesListParams) (protocol.ResourcesListResult, error) {
	return protocol.ResourcesListResult{}, nil
}

func (b *stubBackend) ReadResource(ctx context.Context, params protocol.ResourcesReadParams) (protocol.ResourcesReadResult, error) {
	return protocol.ResourcesReadResult{}, nil
}

func (b *stubBackend) ListPrompts(ctx context.Context, params protocol.PromptsListParams) (protocol.PromptsListResult, error) {
	return protocol.PromptsListResult{}, nil
}

func (b *stubBackend) GetPrompt(ctx context.Context, params protocol.PromptsGetParams) (protocol.PromptsGetResult, error) {
	return protocol.PromptsGetResult{}, nil
}

func newReq(id int64, method string, params interface{}) *protocol.Request {
	var raw json.RawMessage
	if params != nil {
		raw, _ = json.Marshal(params)
	}
	return &protocol.Request{JSONRPC: protocol.Version, Method: method, Params: raw, ID: protocol.NewIntID(id)}
}

func TestDispatcher_Ping(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodPing, nil))
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{}`, string(resp.Result))
}

func TestDispatcher_Initialize(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: "2025-03-26",
		ClientInfo:      protocol.ClientInfo{Name: "test", Version: "1"},
	}))
	require.Nil(t, resp.Error)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "", result.Instructions)
	assert.Equal(t, "stub", result.ServerInfo.Name)
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, "nope", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound.Code(), resp.Error.Code())
}

func TestDispatcher_InvalidParams(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	req := newReq(1, protocol.MethodToolsCall, nil)
	req.Params = json.RawMessage(`{"name": 123}`) // wrong type
	resp := d.Handle(context.Background(), req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams.Code(), resp.Error.Code())
}

func TestDispatcher_ToolsCall(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodToolsCall, protocol.ToolsCallParams{Name: "echo"}))
	require.Nil(t, resp.Error)

	var result protocol.ToolsCallResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "ok", result.Content[0].Text)
}

func TestDispatcher_BackendErrorAsProtocolError(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodToolsCall, protocol.ToolsCallParams{}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams.Code(), resp.Error.Code())
}

func TestDispatcher_UnsupportedOptionalMethod(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodResourcesSubscribe, protocol.ResourcesSubscribeParams{URI: "file:///x"}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound.Code(), resp.Error.Code())
}

func TestDispatcher_IDPreservedOnError(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(99, "unknown", nil))
	require.True(t, resp.ID.Equal(protocol.NewIntID(99)))
}

func TestDispatcher_CustomMethodForwarded(t *testing.T) {
	d := NewDispatcher(&stubBackend{}, DispatcherConfig{}, nil)
	resp := d.Handle(context.Background(), newReq(1, "custom/thing", nil))
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound.Code(), resp.Error.Code())
}

func TestSimpleBackendAdapter_SynthesizesEmptyAnswers(t *testing.T) {
	adapter := NewSimpleBackendAdapter(&simpleStub{})
	d := NewDispatcher(adapter, DispatcherConfig{}, nil)

	resp := d.Handle(context.Background(), newReq(1, protocol.MethodResourcesList, nil))
	require.Nil(t, resp.Error)
	var result protocol.ResourcesListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Empty(t, result.Resources)

	resp = d.Handle(context.Background(), newReq(2, protocol.MethodPromptsGet, protocol.PromptsGetParams{Name: "x"}))
	require.NotNil(t, resp.Error)
}

// slowBackend ignores ctx cancellation entirely, simulating a backend
// method that doesn't honor its deadline, and signals completion on done
// so the test can observe it kept running after Handle returned.
type slowBackend struct {
	Defaults
	sleep time.Duration
	done  chan struct{}
}

func (b *slowBackend) Initialize(ctx context.Context) error { return nil }
func (b *slowBackend) GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities) {
	return protocol.ServerInfo{Name: "slow"}, protocol.ServerCapabilities{}
}
func (b *slowBackend) HealthCheck(ctx context.Context) HealthStatus { return HealthStatus{OK: true} }
func (b *slowBackend) ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error) {
	time.Sleep(b.sleep)
	close(b.done)
	return protocol.ToolsListResult{}, nil
}
func (b *slowBackend) CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error) {
	return protocol.ToolsCallResult{}, nil
}

func TestDispatcher_Handle_ReturnsTimeoutWithoutWaitingForBackend(t *testing.T) {
	backend := &slowBackend{sleep: 100 * time.Millisecond, done: make(chan struct{})}
	d := NewDispatcher(backend, DispatcherConfig{CallTimeout: 10 * time.Millisecond}, nil)

	start := time.Now()
	resp := d.Handle(context.Background(), newReq(1, protocol.MethodToolsList, nil))
	elapsed := time.Since(start)

	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.Timeout.Code(), resp.Error.Code())
	assert.Less(t, elapsed, backend.sleep, "Handle should return at the deadline, not wait for the backend")

	select {
	case <-backend.done:
	case <-time.After(time.Second):
		t.Fatal("backend call never completed in the background")
	}
}

type simpleStub struct{}

func (simpleStub) Initialize(ctx context.Context) error { return nil }
func (simpleStub) GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities) {
	return protocol.ServerInfo{Name: "simple"}, protocol.ServerCapabilities{}
}
func (simpleStub) HealthCheck(ctx context.Context) HealthStatus { return HealthStatus{OK: true} }
func (simpleStub) ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error) {
	return protocol.ToolsListResult{}, nil
}
func (simpleStub) CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error) {
	return protocol.ToolsCallResult{}, nil
}
