package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	sharedauth "github.com/FIipFIop/perp-prediction/internal/shared/auth"
	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
	"github.com/FIipFIop/perp-prediction/internal/shared/util"
)

// RevocationStore remembers logged-out sessions until their tokens expire.
type RevocationStore interface {
	Revoke(ctx context.Context, key string, until time.Time) error
	IsRevoked(ctx context.Context, key string) (bool, error)
}

// MemoryRevocations is a process-local RevocationStore.
type MemoryRevocations struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{items: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(ctx context.Context, key string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.items {
		if now.After(exp) {
			delete(m.items, k)
		}
	}
	m.items[key] = until
	return nil
}

func (m *MemoryRevocations) IsRevoked(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.items[key]
	return ok && !m.now().After(exp), nil
}

// RedisRevocations shares revoked sessions across instances.
type RedisRevocations struct {
	Client *redis.Client
}

const revokedPrefix = "session:revoked:"

func (r *RedisRevocations) Revoke(ctx context.Context, key string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, revokedPrefix+key, 1, ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, revokedPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SessionVerifier validates bearer tokens and rejects revoked sessions.
type SessionVerifier struct {
	Issuer  *sharedauth.Issuer
	Revoked RevocationStore
	Timeout time.Duration
}

// NewSessionVerifier constructs a SessionVerifier. A nil store disables revocation.
func NewSessionVerifier(issuer *sharedauth.Issuer, revoked RevocationStore) *SessionVerifier {
	return &SessionVerifier{Issuer: issuer, Revoked: revoked, Timeout: 2 * time.Second}
}

// Verify implements middleware.TokenVerifier. Revocation lookups fail closed.
func (v *SessionVerifier) Verify(token string) (sharedauth.Claims, error) {
	claims, err := v.Issuer.Verify(token)
	if err != nil {
		return sharedauth.Claims{}, err
	}
	if v.Revoked == nil {
		return claims, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), v.Timeout)
	defer cancel()
	revoked, err := v.Revoked.IsRevoked(ctx, revocationKey(claims, token))
	if err != nil {
		telemetry.Warn("auth.revocation.lookup_failed", map[string]any{"error": err.Error()})
		return sharedauth.Claims{}, sharedauth.ErrInvalidToken
	}
	if revoked {
		return sharedauth.Claims{}, sharedauth.ErrInvalidToken
	}
	return claims, nil
}

// Revoke marks token as logged out until it expires.
func (v *SessionVerifier) Revoke(ctx context.Context, token string) error {
	if v.Revoked == nil {
		return nil
	}
	claims, err := v.Issuer.Verify(token)
	if err != nil {
		return nil
	}
	until := time.Now().Add(v.Issuer.TTL())
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	return v.Revoked.Revoke(ctx, revocationKey(claims, token), until)
}

func revocationKey(claims sharedauth.Claims, token string) string {
	if claims.ID != "" {
		return claims.ID
	}
	return util.HashKey(token)
}
