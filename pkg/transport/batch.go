package transport

import (
	"context"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// ConcurrentSafe is implemented by backends that permit the batch processor
// to dispatch a batch's requests concurrently instead of sequentially. The
// default, when a backend does not implement this interface, is sequential
// dispatch to preserve observable side-effect ordering within a batch.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// ProcessMessage implements the batch processor: it partitions a parsed
// JsonRpcMessage into notifications and requests, invokes handler on each,
// and recomposes the result per the emission rules:
//   - Single input => single response.
//   - Batch input with >=1 request => batch response, in input order, even
//     if the batch collapses to one request.
//   - Batch input with zero requests (all notifications) => Empty response.
//
// concurrent, when true and the message is a Batch, dispatches the batch's
// requests concurrently; responses are still collected in input order.
func ProcessMessage(ctx context.Context, handler Handler, msg *protocol.JsonRpcMessage, concurrent bool) *protocol.ResponseMessage {
	switch msg.Kind {
	case protocol.Single:
		req := msg.Single
		if req.IsNotification() {
			handler(ctx, req)
			return &protocol.ResponseMessage{Empty: true}
		}
		resp := handler(ctx, req)
		return &protocol.ResponseMessage{Kind: protocol.Single, Single: resp}

	case protocol.Batch:
		return processBatch(ctx, handler, msg.Requests, concurrent)

	default:
		resp := protocol.NewErrorResponse(protocol.NullID(), protocol.NewError(protocol.InvalidRequest, "unknown message kind"))
		return &protocol.ResponseMessage{Kind: protocol.Single, Single: resp}
	}
}

func processBatch(ctx context.Context, handler Handler, requests []*protocol.Request, concurrent bool) *protocol.ResponseMessage {
	// Partition while preserving the index each request held in the batch,
	// so responses can be recomposed in input order after dispatch.
	type slot struct {
		req   *protocol.Request
		index int
	}
	var notifications []slot
	var live []slot
	for i, req := range requests {
		if req.IsNotification() {
			notifications = append(notifications, slot{req, i})
		} else {
			live = append(live, slot{req, i})
		}
	}

	for _, n := range notifications {
		handler(ctx, n.req)
	}

	if len(live) == 0 {
		return &protocol.ResponseMessage{Empty: true}
	}

	responses := make([]*protocol.Response, len(live))
	if concurrent {
		done := make(chan struct{}, len(live))
		for i, s := range live {
			go func(i int, s slot) {
				responses[i] = handler(ctx, s.req)
				done <- struct{}{}
			}(i, s)
		}
		for range live {
			<-done
		}
	} else {
		for i, s := range live {
			responses[i] = handler(ctx, s.req)
		}
	}

	return &protocol.ResponseMessage{Kind: protocol.Batch, Responses: responses}
}
