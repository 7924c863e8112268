package middleware

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/mcpcore/pkg/auth"
	"github.com/fyrsmithlabs/mcpcore/pkg/protocol"
)

// CredentialExtractor resolves a bearer credential for the current
// request. HTTP and stdio transports each supply their own.
type CredentialExtractor func(ctx context.Context, req *protocol.Request) *auth.Credential

// AuthInterceptor authenticates every non-anonymous method via Manager
// and enforces a per-method required-role mapping.
type AuthInterceptor struct {
	manager             *auth.Manager
	extract             CredentialExtractor
	anonymousMethods    map[string]bool
	methodRoleRequired  map[string][]auth.RoleKind
}

// AuthInterceptorConfig configures an AuthInterceptor.
type AuthInterceptorConfig struct {
	Manager            *auth.Manager
	Extract            CredentialExtractor
	AnonymousMethods   map[string]bool
	MethodRoleRequired map[string][]auth.RoleKind
}

func NewAuthInterceptor(cfg AuthInterceptorConfig) *AuthInterceptor {
	anon := cfg.AnonymousMethods
	if anon == nil {
		anon = auth.AnonymousMethods
	}
	return &AuthInterceptor{
		manager:            cfg.Manager,
		extract:            cfg.Extract,
		anonymousMethods:   anon,
		methodRoleRequired: cfg.MethodRoleRequired,
	}
}

func (a *AuthInterceptor) Name() string { return "auth" }

func (a *AuthInterceptor) ProcessRequest(ctx context.Context, rc *RequestContext, req *protocol.Request) (*protocol.Request, error) {
	if a.anonymousMethods[req.Method] {
		return req, nil
	}

	cred := a.extract(ctx, req)
	if cred == nil {
		return req, protocol.NewError(protocol.Unauthorized, "authentication required")
	}

	authCtx, err := a.authenticate(*cred)
	if err != nil {
		a.recordFailure(err)
		return req, classifyAuthError(err)
	}

	rc.UserID = authCtx.UserID
	rc.Roles = roleNames(authCtx.Roles)

	if required, ok := a.methodRoleRequired[req.Method]; ok && len(required) > 0 {
		if !hasAnyRole(authCtx.Roles, required) {
			return req, protocol.NewError(protocol.Forbidden, "method requires an unheld role")
		}
	}

	return req, nil
}

func (a *AuthInterceptor) authenticate(cred auth.Credential) (*auth.AuthContext, error) {
	if cred.IsJWT {
		return a.manager.ValidateJWT(cred.Value, cred.ClientIP)
	}
	return a.manager.ValidateApiKey(cred.Value, cred.ClientIP)
}

// recordFailure feeds a classified auth failure back into the lockout
// counter when it can be attributed to a specific key. A secret that
// matched no key at all (ErrInvalidApiKey with no KeyIDError wrapper)
// has nothing to attribute the failure to.
func (a *AuthInterceptor) recordFailure(err error) {
	var keyErr *auth.KeyIDError
	if errors.As(err, &keyErr) {
		_ = a.manager.RecordFailedAttempt(keyErr.KeyID)
	}
}

func (a *AuthInterceptor) ProcessResponse(ctx context.Context, rc *RequestContext, resp *protocol.Response) *protocol.Response {
	return resp
}

func classifyAuthError(err error) *protocol.Error {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return protocol.NewError(protocol.Forbidden, err.Error())
	case errors.Is(err, auth.ErrRateLimited):
		return protocol.NewError(protocol.RateLimited, err.Error())
	case errors.Is(err, auth.ErrInvalidApiKey), errors.Is(err, auth.ErrUnauthorized):
		return protocol.NewError(protocol.Unauthorized, err.Error())
	default:
		return protocol.NewError(protocol.Unauthorized, err.Error())
	}
}

func roleNames(roles []auth.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Kind.String()
	}
	return out
}

func hasAnyRole(held []auth.Role, required []auth.RoleKind) bool {
	for _, h := range held {
		for _, r := range required {
			if h.Kind == r {
				return true
			}
		}
	}
	return false
}
