package middleware

import (
	"context"

	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
	"github.com/fyrsmithlabs/mcpcore/pkg/security"
)

// SecurityInterceptor runs the pre-auth validator against a decoded
// request's method and params. It belongs first in the pipeline so a
// malformed or oversized request never reaches auth. Message byte-size
// capping happens one layer down, in the transport that owns the raw
// bytes (stdio, httpenv) — by the time a request reaches this
// interceptor it has already been decoded into a *protocol.Request.
type SecurityInterceptor struct {
	validator *security.Validator
}

// NewSecurityInterceptor wraps validator as an Interceptor.
func NewSecurityInterceptor(validator *security.Validator) *SecurityInterceptor {
	return &SecurityInterceptor{validator: validator}
}

func (s *SecurityInterceptor) Name() string { return "security" }

func (s *SecurityInterceptor) ProcessRequest(ctx context.Context, rc *RequestContext, req *protocol.Request) (*protocol.Request, error) {
	if err := s.validator.ValidateMethod(req.Method); err != nil {
		return req, err
	}
	if err := s.validator.ValidateParams(req.Params); err != nil {
		return req, err
	}
	return req, nil
}

func (s *SecurityInterceptor) ProcessResponse(ctx context.Context, rc *RequestContext, resp *protocol.Response) *protocol.Response {
	return resp
}
