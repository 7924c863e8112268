package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mcpcore/internal/logging"
)

// Sentinel errors the Manager returns; callers (the Dispatcher's
// ErrorClassifier, the auth middleware) map these onto the MCP error
// taxonomy.
var (
	ErrConfiguration  = errors.New("auth: configuration error")
	ErrInvalidApiKey  = errors.New("auth: invalid api key")
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrForbidden      = errors.New("auth: forbidden")
	ErrRateLimited    = errors.New("auth: rate limited")
	ErrKeyNotFound    = errors.New("auth: key not found")
)

// KeyIDError wraps one of the sentinel errors above with the id of the key
// the failure was attributed to. ValidateApiKey only attaches one when a
// key was actually matched by secret hash; a secret matching no key at all
// carries no id to attribute the failure to.
type KeyIDError struct {
	KeyID string
	Err   error
}

func (e *KeyIDError) Error() string { return e.Err.Error() }
func (e *KeyIDError) Unwrap() error { return e.Err }

// LockoutPolicy configures per-key failed-attempt lockout.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Window            time.Duration
	BlockDuration     time.Duration
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Storage    StorageBackend
	Lockout    LockoutPolicy
	CacheSize  int
	JWT        JWTConfig
	AuditSink  AuditSink
}

// AuditSink receives key lifecycle events. Optional; a nil sink disables
// auditing.
type AuditSink interface {
	RecordKeyEvent(event string, keyID string, metadata map[string]string)
}

// Manager owns the full API-key and JWT authentication lifecycle:
// creation, validation, lockout, rotation, revocation.
type Manager struct {
	mu         sync.RWMutex
	keys       map[string]*ApiKey
	rateLimits map[string]*RateLimitState
	storage    StorageBackend
	lockout    LockoutPolicy
	cache      *lru.Cache[string, *AuthContext]
	jwt        *jwtValidator
	audit      AuditSink
	logger     *logging.Logger
}

// NewManager loads the key set from storage and returns a ready Manager.
func NewManager(cfg ManagerConfig, logger *logging.Logger) (*Manager, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("%w: storage backend required", ErrConfiguration)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if logger == nil {
		logger = logging.Nop()
	}

	keys, err := cfg.Storage.LoadKeys()
	if err != nil {
		return nil, fmt.Errorf("auth: load keys: %w", err)
	}
	cache, err := lru.New[string, *AuthContext](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("auth: init cache: %w", err)
	}

	var jv *jwtValidator
	if cfg.JWT.Enabled {
		jv, err = newJWTValidator(cfg.JWT)
		if err != nil {
			return nil, err
		}
	}

	return &Manager{
		keys:       keys,
		rateLimits: make(map[string]*RateLimitState),
		storage:    cfg.Storage,
		lockout:    cfg.Lockout,
		cache:      cache,
		jwt:        jv,
		audit:      cfg.AuditSink,
		logger:     logger.Named("auth"),
	}, nil
}

func (m *Manager) recordEvent(event, keyID string, metadata map[string]string) {
	if m.audit != nil {
		m.audit.RecordKeyEvent(event, keyID, metadata)
	}
}

// CreateApiKey generates a new key with a fresh id and secret, persists
// it, and returns it with Secret populated. The plaintext secret is
// never retrievable again after this call returns.
func (m *Manager) CreateApiKey(name string, role Role, ttl *time.Duration, ipWhitelist []string) (*ApiKey, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrConfiguration)
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("auth: generate secret: %w", err)
	}
	now := time.Now().UTC()
	key := &ApiKey{
		ID:          uuid.NewString(),
		Secret:      secret,
		SecretHash:  sha256.Sum256([]byte(secret)),
		Role:        role,
		CreatedAt:   now,
		Active:      true,
		IPWhitelist: ipWhitelist,
		Metadata:    map[string]string{"name": name},
	}
	if ttl != nil {
		exp := now.Add(*ttl)
		key.ExpiresAt = &exp
	}

	m.mu.Lock()
	m.keys[key.ID] = key
	m.mu.Unlock()

	if err := m.storage.SaveKey(key); err != nil {
		return nil, fmt.Errorf("auth: persist key: %w", err)
	}
	m.recordEvent("key_created", key.ID, map[string]string{"name": name})
	return key, nil
}

func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return "mcp_" + base64.RawURLEncoding.EncodeToString(raw), nil
}

// ValidateApiKey authenticates a bearer secret and, on success, returns a
// fresh AuthContext. clientIP is checked against the key's whitelist when
// one is configured and clientIP is non-empty.
func (m *Manager) ValidateApiKey(secret string, clientIP string) (*AuthContext, error) {
	hash := sha256.Sum256([]byte(secret))

	m.mu.RLock()
	var match *ApiKey
	for _, k := range m.keys {
		if secureCompare(hash[:], k.SecretHash[:]) {
			match = k
			break
		}
	}
	m.mu.RUnlock()

	if match == nil {
		return nil, ErrInvalidApiKey
	}

	m.mu.RLock()
	rl := m.rateLimits[match.ID]
	m.mu.RUnlock()
	now := time.Now().UTC()
	if rl != nil && rl.Blocked(now) {
		return nil, &KeyIDError{KeyID: match.ID, Err: ErrRateLimited}
	}

	if !match.Valid(now) {
		return nil, &KeyIDError{KeyID: match.ID, Err: ErrUnauthorized}
	}

	if len(match.IPWhitelist) > 0 && clientIP != "" && !ipAllowed(clientIP, match.IPWhitelist) {
		return nil, &KeyIDError{KeyID: match.ID, Err: ErrForbidden}
	}

	m.mu.Lock()
	match.UsageCount++
	match.LastUsed = &now
	delete(m.rateLimits, match.ID)
	m.mu.Unlock()

	if err := m.storage.SaveKey(match); err != nil {
		m.logger.Error(context.Background(), "failed to persist key usage", zap.Error(err))
	}

	ctx := &AuthContext{
		UserID:          match.ID,
		ApiKeyID:        match.ID,
		Roles:           []Role{match.Role},
		Permissions:     match.Role.Permissions(),
		RequestID:       uuid.NewString(),
		AuthenticatedAt: now,
		ClientIP:        clientIP,
	}
	m.cache.Add(secret, ctx)
	return ctx, nil
}

// RecordFailedAttempt increments the key's failure counter and, once the
// threshold is crossed within the configured window, sets blocked_until.
// The lockout state is held in memory only and is not persisted; it does
// not survive a restart.
func (m *Manager) RecordFailedAttempt(keyID string) error {
	if m.lockout.MaxFailedAttempts <= 0 {
		return nil
	}
	now := time.Now().UTC()

	m.mu.Lock()
	rl, ok := m.rateLimits[keyID]
	if !ok || now.Sub(rl.WindowStart) > m.lockout.Window {
		rl = &RateLimitState{WindowStart: now}
		m.rateLimits[keyID] = rl
	}
	rl.FailedAttempts++
	locked := rl.FailedAttempts >= m.lockout.MaxFailedAttempts
	if locked {
		rl.BlockedUntil = now.Add(m.lockout.BlockDuration)
	}
	m.mu.Unlock()

	if locked {
		m.recordEvent("key_locked", keyID, nil)
	}
	return nil
}

// ListApiKeys returns every known key with its plaintext secret cleared.
func (m *Manager) ListApiKeys() []*ApiKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ApiKey, 0, len(m.keys))
	for _, k := range m.keys {
		cp := *k
		cp.Secret = ""
		out = append(out, &cp)
	}
	return out
}

// RevokeApiKey marks a key inactive and persists the change.
func (m *Manager) RevokeApiKey(id string) error {
	m.mu.Lock()
	key, ok := m.keys[id]
	if !ok {
		m.mu.Unlock()
		return ErrKeyNotFound
	}
	key.Active = false
	m.mu.Unlock()

	if err := m.storage.SaveKey(key); err != nil {
		return fmt.Errorf("auth: persist revocation: %w", err)
	}
	m.purgeCacheFor(key)
	m.recordEvent("key_revoked", id, nil)
	return nil
}

// RotateApiKey issues a fresh secret for an existing key id, invalidating
// any cached validation of the old secret.
func (m *Manager) RotateApiKey(id string) (string, error) {
	secret, err := generateSecret()
	if err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}

	m.mu.Lock()
	key, ok := m.keys[id]
	if !ok {
		m.mu.Unlock()
		return "", ErrKeyNotFound
	}
	m.purgeCacheForLocked(key)
	key.Secret = secret
	key.SecretHash = sha256.Sum256([]byte(secret))
	m.mu.Unlock()

	if err := m.storage.SaveKey(key); err != nil {
		return "", fmt.Errorf("auth: persist rotation: %w", err)
	}
	m.recordEvent("key_rotated", id, nil)
	return secret, nil
}

func (m *Manager) purgeCacheFor(key *ApiKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeCacheForLocked(key)
}

// purgeCacheForLocked evicts every cached AuthContext for this key's
// current secret. Must be called with m.mu held.
func (m *Manager) purgeCacheForLocked(key *ApiKey) {
	if key.Secret != "" {
		m.cache.Remove(key.Secret)
	}
}

func ipAllowed(ip string, whitelist []string) bool {
	for _, entry := range whitelist {
		if entry == ip {
			return true
		}
		if cidrContains(entry, ip) {
			return true
		}
	}
	return false
}
