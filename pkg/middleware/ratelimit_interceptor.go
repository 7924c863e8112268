package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// RateLimitInterceptor enforces a single global requests/second budget,
// independent of the per-key lockout the auth manager tracks (§4.8's
// closing note: global rate limits are a separate middleware concern).
type RateLimitInterceptor struct {
	limiter *rate.Limiter
}

// NewRateLimitInterceptor builds an interceptor allowing ratePerSecond
// sustained requests with a burst of burst.
func NewRateLimitInterceptor(ratePerSecond float64, burst int) *RateLimitInterceptor {
	return &RateLimitInterceptor{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (r *RateLimitInterceptor) Name() string { return "rate_limit" }

func (r *RateLimitInterceptor) ProcessRequest(ctx context.Context, rc *RequestContext, req *protocol.Request) (*protocol.Request, error) {
	if !r.limiter.Allow() {
		return req, protocol.NewError(protocol.RateLimited, "global rate limit exceeded")
	}
	return req, nil
}

func (r *RateLimitInterceptor) ProcessResponse(ctx context.Context, rc *RequestContext, resp *protocol.Response) *protocol.Response {
	return resp
}
