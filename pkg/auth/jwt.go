package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig configures bearer-JWT acceptance alongside API keys.
type JWTConfig struct {
	Enabled  bool
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// registeredClaims is the on-wire JWT payload. Roles is this framework's
// extension beyond the standard registered claims.
type registeredClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

type jwtValidator struct {
	cfg JWTConfig
}

func newJWTValidator(cfg JWTConfig) (*jwtValidator, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("%w: JWT secret required when JWT is enabled", ErrConfiguration)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &jwtValidator{cfg: cfg}, nil
}

// IssueJWT mints a signed bearer token for subject, carrying roles. This
// is a supplemental capability beyond pure validation: the framework can
// act as its own token issuer for service-to-service callers.
func (m *Manager) IssueJWT(subject string, roles []string) (string, error) {
	if m.jwt == nil {
		return "", fmt.Errorf("%w: JWT issuance is not configured", ErrConfiguration)
	}
	now := time.Now().UTC()
	claims := registeredClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.jwt.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.jwt.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.jwt.cfg.TTL)),
			ID:        uuid.NewString(),
		},
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.jwt.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies signature, issuer, audience, and the nbf/exp
// window, then returns an AuthContext analogous to an API key's.
func (m *Manager) ValidateJWT(tokenString string, clientIP string) (*AuthContext, error) {
	if m.jwt == nil {
		return nil, fmt.Errorf("%w: JWT validation is not configured", ErrConfiguration)
	}

	var claims registeredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.jwt.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(m.jwt.cfg.Issuer),
		jwt.WithAudience(m.jwt.cfg.Audience),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	roles := make([]Role, 0, len(claims.Roles))
	permissions := make([]string, 0, len(claims.Roles))
	for _, name := range claims.Roles {
		r := roleFromName(name)
		roles = append(roles, r)
		permissions = append(permissions, r.Permissions()...)
	}

	return &AuthContext{
		UserID:          claims.Subject,
		Roles:           roles,
		Permissions:     permissions,
		RequestID:       uuid.NewString(),
		AuthenticatedAt: time.Now().UTC(),
		ClientIP:        clientIP,
	}, nil
}
