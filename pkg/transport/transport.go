// Package transport defines the byte-level carrier contract shared by every
// MCP transport, plus the batch processor that turns a decoded message into
// dispatched responses.
package transport

import (
	"context"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// Handler is the dispatcher entry point a transport invokes for every
// parsed request. It never panics; all failure modes surface as a
// protocol.Response carrying an Error.
type Handler func(ctx context.Context, req *protocol.Request) *protocol.Response

// HealthStatus is the result of a non-blocking transport health probe.
type HealthStatus int

const (
	// HealthOK indicates the transport is accepting and serving traffic.
	HealthOK HealthStatus = iota
	// HealthUnhealthy indicates the transport cannot currently serve traffic.
	HealthUnhealthy
)

// Transport is a stateful carrier with three lifecycle operations. Start
// blocks, consuming inbound messages and invoking handler for each parsed
// request, until Stop is called or the peer closes the connection. Stop is
// idempotent. HealthCheck never blocks on I/O.
type Transport interface {
	Start(ctx context.Context, handler Handler) error
	Stop() error
	HealthCheck() HealthStatus
}

// Message carries one inbound unit through the pipeline before it reaches
// the dispatcher: the headers a transport-specific extractor populated, the
// decoded JSON body, the raw bytes (retained for logging/size accounting),
// and which transport produced it.
type Message struct {
	Headers       map[string]string
	Body          *protocol.JsonRpcMessage
	Raw           []byte
	TransportType string
}
