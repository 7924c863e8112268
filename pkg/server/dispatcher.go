package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// DefaultCallTimeout is the deadline applied to every backend call unless
// overridden in DispatcherConfig.
const DefaultCallTimeout = 30 * time.Second

// ErrorClassifier lets a backend declare its own conversion from a domain
// error into the MCP error taxonomy. Backends that don't implement this
// get the Dispatcher's default classification.
type ErrorClassifier interface {
	ClassifyError(err error) *protocol.Error
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// CallTimeout bounds every backend call. Zero selects DefaultCallTimeout.
	CallTimeout time.Duration
}

// Dispatcher routes a decoded Request to Backend methods by its method
// name, decodes typed params, and converts every failure mode into a
// well-formed Response. It never panics: a panic inside a backend call is
// recovered and reported as InternalError.
type Dispatcher struct {
	backend Backend
	cfg     DispatcherConfig
	logger  *logging.Logger

	serverInfo   protocol.ServerInfo
	capabilities protocol.ServerCapabilities
}

// NewDispatcher builds a Dispatcher over backend. GetServerInfo is called
// once here and cached, matching the "pure; cached" contract.
func NewDispatcher(backend Backend, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	info, caps := backend.GetServerInfo()
	return &Dispatcher{
		backend:      backend,
		cfg:          cfg,
		logger:       logger.Named("dispatcher"),
		serverInfo:   info,
		capabilities: caps,
	}
}

// ConcurrentSafe reports whether the backend opts in to concurrent batch
// dispatch; it satisfies transport.ConcurrentSafe.
func (d *Dispatcher) ConcurrentSafe() bool {
	if cs, ok := d.backend.(interface{ ConcurrentSafe() bool }); ok {
		return cs.ConcurrentSafe()
	}
	return false
}

// routeOutcome carries a route() result across the goroutine boundary in
// Handle.
type routeOutcome struct {
	result interface{}
	err    error
}

// Handle is the transport.Handler entry point. It never panics: a panic
// recovered from the backend or param decoding is reported as
// InternalError rather than crashing the transport's read loop.
//
// The backend call runs in its own goroutine so a deadline can be
// reported to the peer the instant it expires, without waiting on (or
// cancelling) the backend's own work, which may not honor ctx.
func (d *Dispatcher) Handle(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(ctx, "dispatcher recovered from panic", zap.Any("panic", r), zap.String("method", req.Method))
			resp = protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, "internal error"))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	if logging.DispatchLogLevel(req.Method) == logging.TraceLevel {
		d.logger.Trace(ctx, "dispatching request", zap.String("method", req.Method))
	} else {
		d.logger.Debug(ctx, "dispatching request", zap.String("method", req.Method))
	}

	done := make(chan routeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error(ctx, "dispatcher recovered from panic", zap.Any("panic", r), zap.String("method", req.Method))
				done <- routeOutcome{err: protocol.NewError(protocol.InternalError, "internal error")}
			}
		}()
		result, err := d.route(ctx, req)
		done <- routeOutcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		d.logger.Warn(ctx, "backend call exceeded deadline", zap.String("method", req.Method))
		return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.Timeout, "Operation timed out"))
	case o := <-done:
		if o.err != nil {
			return protocol.NewErrorResponse(req.ID, d.classify(o.err))
		}
		respMsg, merr := protocol.NewResultResponse(req.ID, o.result)
		if merr != nil {
			return protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.InternalError, "failed to encode result"))
		}
		return respMsg
	}
}

func (d *Dispatcher) classify(err error) *protocol.Error {
	if perr, ok := err.(*protocol.Error); ok {
		return perr
	}
	if _, ok := err.(*NotSupported); ok {
		return protocol.NewError(protocol.MethodNotFound, err.Error())
	}
	if classifier, ok := d.backend.(ErrorClassifier); ok {
		if perr := classifier.ClassifyError(err); perr != nil {
			return perr
		}
	}
	return protocol.NewError(protocol.InternalError, err.Error())
}

func (d *Dispatcher) route(ctx context.Context, req *protocol.Request) (interface{}, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		var params protocol.InitializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, invalidParams(err)
			}
		}
		return protocol.InitializeResult{
			ProtocolVersion: protocol.ProtocolVersion,
			Capabilities:    d.capabilities,
			ServerInfo:      d.serverInfo,
			Instructions:    "",
		}, nil

	case protocol.MethodPing:
		return protocol.PingResult{}, nil

	case protocol.MethodToolsList:
		var params protocol.ToolsListParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.ListTools(ctx, params)

	case protocol.MethodToolsCall:
		var params protocol.ToolsCallParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.CallTool(ctx, params)

	case protocol.MethodResourcesList:
		var params protocol.ResourcesListParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.ListResources(ctx, params)

	case protocol.MethodResourcesRead:
		var params protocol.ResourcesReadParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.ReadResource(ctx, params)

	case protocol.MethodResourcesTemplatesList:
		var params protocol.ResourcesListParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.ListResourceTemplates(ctx, params)

	case protocol.MethodResourcesSubscribe:
		var params protocol.ResourcesSubscribeParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return struct{}{}, d.backend.Subscribe(ctx, params)

	case protocol.MethodResourcesUnsubscribe:
		var params protocol.ResourcesSubscribeParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return struct{}{}, d.backend.Unsubscribe(ctx, params)

	case protocol.MethodPromptsList:
		var params protocol.PromptsListParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.ListPrompts(ctx, params)

	case protocol.MethodPromptsGet:
		var params protocol.PromptsGetParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.GetPrompt(ctx, params)

	case protocol.MethodCompletionComplete:
		var params protocol.CompletionCompleteParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return d.backend.Complete(ctx, params)

	case protocol.MethodLoggingSetLevel:
		var params protocol.LoggingSetLevelParams
		if err := decodeParams(req.Params, &params); err != nil {
			return nil, err
		}
		return struct{}{}, d.backend.SetLevel(ctx, params)

	default:
		return d.backend.HandleCustomMethod(ctx, req.Method, req.Params)
	}
}

// decodeParams unmarshals raw params into dst when present. An empty or
// absent params field leaves dst at its zero value rather than erroring;
// most MCP methods tolerate an absent optional field.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams(err)
	}
	return nil
}

func invalidParams(err error) *protocol.Error {
	return protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid params: %s", err))
}
