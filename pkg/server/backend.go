// Package server routes JSON-RPC requests to a host-supplied Backend.
package server

import (
	"context"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// HealthStatus is the result of a backend health probe.
type HealthStatus struct {
	OK      bool
	Message string
}

// Backend is the domain-specific surface a host implements to expose
// tools, resources, and prompts. The Dispatcher owns a Backend and never
// mutates it concurrently with Initialize.
//
// Every method not in the minimum surface has a default no-op
// implementation on Defaults, which hosts embed to avoid implementing
// methods they don't need.
type Backend interface {
	// Initialize runs once, before the transport starts serving traffic.
	Initialize(ctx context.Context) error

	// GetServerInfo is pure and may be cached by the dispatcher.
	GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities)

	HealthCheck(ctx context.Context) HealthStatus

	ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error)
	CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error)
	ListResources(ctx context.Context, params protocol.ResourcesListParams) (protocol.ResourcesListResult, error)
	ReadResource(ctx context.Context, params protocol.ResourcesReadParams) (protocol.ResourcesReadResult, error)
	ListPrompts(ctx context.Context, params protocol.PromptsListParams) (protocol.PromptsListResult, error)
	GetPrompt(ctx context.Context, params protocol.PromptsGetParams) (protocol.PromptsGetResult, error)

	// Optional surface. Hosts embedding Defaults get NotSupported answers.
	ListResourceTemplates(ctx context.Context, params protocol.ResourcesListParams) (protocol.ResourcesTemplatesListResult, error)
	Subscribe(ctx context.Context, params protocol.ResourcesSubscribeParams) error
	Unsubscribe(ctx context.Context, params protocol.ResourcesSubscribeParams) error
	Complete(ctx context.Context, params protocol.CompletionCompleteParams) (protocol.CompletionCompleteResult, error)
	SetLevel(ctx context.Context, params protocol.LoggingSetLevelParams) error
	HandleCustomMethod(ctx context.Context, method string, params []byte) (interface{}, error)

	OnStartup(ctx context.Context) error
	OnShutdown(ctx context.Context) error
	OnClientConnect(ctx context.Context, client protocol.ClientInfo) error
	OnClientDisconnect(ctx context.Context) error
}

// NotSupported is returned by Defaults' optional-method stubs.
type NotSupported struct {
	Method string
}

func (e *NotSupported) Error() string {
	return "not supported: " + e.Method
}

// Defaults supplies no-op implementations of every optional Backend
// method. Hosts embed it in their own backend struct and override only
// what they need; the minimum-surface methods remain abstract and must
// still be implemented by the embedder.
type Defaults struct{}

func (Defaults) ListResourceTemplates(ctx context.Context, params protocol.ResourcesListParams) (protocol.ResourcesTemplatesListResult, error) {
	return protocol.ResourcesTemplatesListResult{ResourceTemplates: []protocol.ResourceTemplate{}}, nil
}

func (Defaults) Subscribe(ctx context.Context, params protocol.ResourcesSubscribeParams) error {
	return &NotSupported{Method: protocol.MethodResourcesSubscribe}
}

func (Defaults) Unsubscribe(ctx context.Context, params protocol.ResourcesSubscribeParams) error {
	return &NotSupported{Method: protocol.MethodResourcesUnsubscribe}
}

func (Defaults) Complete(ctx context.Context, params protocol.CompletionCompleteParams) (protocol.CompletionCompleteResult, error) {
	return protocol.CompletionCompleteResult{}, &NotSupported{Method: protocol.MethodCompletionComplete}
}

func (Defaults) SetLevel(ctx context.Context, params protocol.LoggingSetLevelParams) error {
	return nil
}

func (Defaults) HandleCustomMethod(ctx context.Context, method string, params []byte) (interface{}, error) {
	return nil, &NotSupported{Method: method}
}

func (Defaults) OnStartup(ctx context.Context) error           { return nil }
func (Defaults) OnShutdown(ctx context.Context) error          { return nil }
func (Defaults) OnClientConnect(ctx context.Context, client protocol.ClientInfo) error {
	return nil
}
func (Defaults) OnClientDisconnect(ctx context.Context) error { return nil }

// SimpleBackend is the narrower surface for hosts exposing only tools.
// Wrap one with NewSimpleBackendAdapter to get a full Backend.
type SimpleBackend interface {
	Initialize(ctx context.Context) error
	GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities)
	HealthCheck(ctx context.Context) HealthStatus
	ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error)
	CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error)
}

// SimpleBackendAdapter wraps a SimpleBackend and synthesizes empty
// resource/prompt answers plus no-op lifecycle hooks, producing a full
// Backend. This is the explicit adapter constructor spec.md §9 calls for
// in place of inheritance-flavored auto-conversion.
type SimpleBackendAdapter struct {
	Defaults
	inner SimpleBackend
}

// NewSimpleBackendAdapter wraps inner as a full Backend.
func NewSimpleBackendAdapter(inner SimpleBackend) *SimpleBackendAdapter {
	return &SimpleBackendAdapter{inner: inner}
}

func (a *SimpleBackendAdapter) Initialize(ctx context.Context) error {
	return a.inner.Initialize(ctx)
}

func (a *SimpleBackendAdapter) GetServerInfo() (protocol.ServerInfo, protocol.ServerCapabilities) {
	return a.inner.GetServerInfo()
}

func (a *SimpleBackendAdapter) HealthCheck(ctx context.Context) HealthStatus {
	return a.inner.HealthCheck(ctx)
}

func (a *SimpleBackendAdapter) ListTools(ctx context.Context, params protocol.ToolsListParams) (protocol.ToolsListResult, error) {
	return a.inner.ListTools(ctx, params)
}

func (a *SimpleBackendAdapter) CallTool(ctx context.Context, params protocol.ToolsCallParams) (protocol.ToolsCallResult, error) {
	return a.inner.CallTool(ctx, params)
}

func (a *SimpleBackendAdapter) ListResources(ctx context.Context, params protocol.ResourcesListParams) (protocol.ResourcesListResult, error) {
	return protocol.ResourcesListResult{Resources: []protocol.Resource{}}, nil
}

func (a *SimpleBackendAdapter) ReadResource(ctx context.Context, params protocol.ResourcesReadParams) (protocol.ResourcesReadResult, error) {
	return protocol.ResourcesReadResult{}, &NotSupported{Method: protocol.MethodResourcesRead}
}

func (a *SimpleBackendAdapter) ListPrompts(ctx context.Context, params protocol.PromptsListParams) (protocol.PromptsListResult, error) {
	return protocol.PromptsListResult{Prompts: []protocol.Prompt{}}, nil
}

func (a *SimpleBackendAdapter) GetPrompt(ctx context.Context, params protocol.PromptsGetParams) (protocol.PromptsGetResult, error) {
	return protocol.PromptsGetResult{}, &NotSupported{Method: protocol.MethodPromptsGet}
}
