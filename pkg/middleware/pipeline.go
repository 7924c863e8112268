// Package middleware implements the request/response interceptor chain
// that runs around the dispatcher: auth, rate limiting, and any
// host-supplied cross-cutting concerns.
package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// RequestContext is shared mutable state threaded through one request's
// interceptor chain. User/roles may only be set by the auth interceptor;
// everything else may append to Metadata freely.
type RequestContext struct {
	RequestID string
	UserID    string
	Roles     []string
	Metadata  map[string]string
}

// NewRequestContext builds a RequestContext with a fresh request id.
func NewRequestContext() *RequestContext {
	return &RequestContext{RequestID: uuid.NewString(), Metadata: make(map[string]string)}
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom retrieves the RequestContext attached to ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// Interceptor processes a request before dispatch and its response
// after. Returning a non-nil error from ProcessRequest short-circuits
// the remaining request interceptors; the dispatcher is never invoked,
// and ProcessResponse runs on every interceptor before the failing one,
// innermost first, so cleanup and observability interceptors still see
// the failure. The failing interceptor itself gets no ProcessResponse.
type Interceptor interface {
	Name() string
	ProcessRequest(ctx context.Context, rc *RequestContext, req *protocol.Request) (*protocol.Request, error)
	ProcessResponse(ctx context.Context, rc *RequestContext, resp *protocol.Response) *protocol.Response
}

// Pipeline runs an ordered list of interceptors around a dispatch call.
type Pipeline struct {
	interceptors []Interceptor
}

// NewPipeline builds a Pipeline running interceptors in the given order.
func NewPipeline(interceptors ...Interceptor) *Pipeline {
	return &Pipeline{interceptors: interceptors}
}

// Dispatch is the shape of the wrapped call: a fully decoded request in,
// a response out. The Dispatcher's Handle method satisfies this.
type Dispatch func(ctx context.Context, req *protocol.Request) *protocol.Response

// Run executes the full pipeline: request interceptors in forward order,
// then dispatch (unless short-circuited), then response interceptors in
// reverse order starting from the point of failure (or from the end, on
// success).
func (p *Pipeline) Run(ctx context.Context, req *protocol.Request, dispatch Dispatch) *protocol.Response {
	rc := NewRequestContext()
	ctx = WithRequestContext(ctx, rc)

	failedAt := -1
	var requestErr error
	for i, ic := range p.interceptors {
		var err error
		req, err = ic.ProcessRequest(ctx, rc, req)
		if err != nil {
			failedAt = i
			requestErr = err
			break
		}
	}

	var resp *protocol.Response
	if failedAt == -1 {
		resp = dispatch(ctx, req)
		failedAt = len(p.interceptors)
	} else {
		resp = protocol.NewErrorResponse(req.ID, classifyInterceptorError(requestErr))
	}

	for i := failedAt - 1; i >= 0; i-- {
		resp = p.interceptors[i].ProcessResponse(ctx, rc, resp)
	}
	return resp
}

// classifyInterceptorError converts an interceptor's error into the MCP
// taxonomy: a *protocol.Error passes through unchanged (auth and
// rate-limit interceptors build these directly), anything else becomes
// an InternalError.
func classifyInterceptorError(err error) *protocol.Error {
	if perr, ok := err.(*protocol.Error); ok {
		return perr
	}
	return protocol.NewError(protocol.InternalError, err.Error())
}
