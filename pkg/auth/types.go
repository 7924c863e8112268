// Package auth implements API-key and JWT authentication: key lifecycle,
// encrypted-at-rest storage, sliding-window lockout, and per-transport
// credential extraction.
package auth

import (
	"crypto/subtle"
	"time"
)

// RoleKind discriminates the fixed and parametrized Role variants.
type RoleKind int

const (
	RoleAdmin RoleKind = iota
	RoleOperator
	RoleMonitor
	RoleDevice
	RoleCustom
)

func (k RoleKind) String() string {
	switch k {
	case RoleAdmin:
		return "admin"
	case RoleOperator:
		return "operator"
	case RoleMonitor:
		return "monitor"
	case RoleDevice:
		return "device"
	case RoleCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Role identifies what an authenticated principal is allowed to do.
// Device and Custom carry their own declared permission set; the fixed
// roles resolve through Permissions.
type Role struct {
	Kind    RoleKind
	Granted []string // only meaningful for RoleDevice / RoleCustom
}

func AdminRole() Role    { return Role{Kind: RoleAdmin} }
func OperatorRole() Role { return Role{Kind: RoleOperator} }
func MonitorRole() Role  { return Role{Kind: RoleMonitor} }
func DeviceRole(allowed []string) Role {
	return Role{Kind: RoleDevice, Granted: allowed}
}
func CustomRole(permissions []string) Role {
	return Role{Kind: RoleCustom, Granted: permissions}
}

// wildcardPermission grants every operation; only RoleAdmin resolves to it.
const wildcardPermission = "*"

// Permissions flattens a role into its concrete permission set.
func (r Role) Permissions() []string {
	switch r.Kind {
	case RoleAdmin:
		return []string{wildcardPermission}
	case RoleOperator:
		return []string{"tools:call", "resources:read", "prompts:get"}
	case RoleMonitor:
		return []string{"resources:read"}
	case RoleDevice, RoleCustom:
		return r.Granted
	default:
		return nil
	}
}

// HasPermission reports whether the role grants perm, honoring the admin
// wildcard.
func (r Role) HasPermission(perm string) bool {
	for _, p := range r.Permissions() {
		if p == wildcardPermission || p == perm {
			return true
		}
	}
	return false
}

// ApiKey is a credential a caller presents as a bearer secret. Secret is
// populated only at creation/rotation time; everywhere else the manager
// holds SecretHash instead.
type ApiKey struct {
	ID          string
	Secret      string // plaintext; zero value once persisted
	SecretHash  [32]byte
	Role        Role
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastUsed    *time.Time
	Active      bool
	IPWhitelist []string // CIDR or literal IPs; empty = any
	UsageCount  uint64
	Metadata    map[string]string
}

// Valid reports whether the key may currently authenticate a request.
func (k *ApiKey) Valid(now time.Time) bool {
	if !k.Active {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// AuthContext is the per-request record of a successfully authenticated
// caller. It lives for the duration of one request.
type AuthContext struct {
	UserID          string
	ApiKeyID        string
	Roles           []Role
	Permissions     []string
	RequestID       string
	AuthenticatedAt time.Time
	ClientIP        string
	UserAgent       string
}

// HasPermission reports whether any held role grants perm.
func (c AuthContext) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == wildcardPermission || p == perm {
			return true
		}
	}
	return false
}

// HasRole reports whether the context carries a role of the given kind.
func (c AuthContext) HasRole(kind RoleKind) bool {
	for _, r := range c.Roles {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// JwtClaims mirrors the registered JWT claims this framework validates,
// plus an optional roles extension.
type JwtClaims struct {
	Subject   string
	Issuer    string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	NotBefore time.Time
	ID        string
	Roles     []string
}

// RateLimitState tracks per-key lockout over a sliding window.
type RateLimitState struct {
	FailedAttempts int
	WindowStart    time.Time
	BlockedUntil   time.Time
}

// Blocked reports whether the key is currently locked out.
func (s RateLimitState) Blocked(now time.Time) bool {
	return now.Before(s.BlockedUntil)
}

// secureCompare is a constant-time byte comparator. Both arguments are
// fixed-length SHA-256 digests in every caller, so the length check
// never itself discriminates between real secrets.
func secureCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
