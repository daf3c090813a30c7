package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationKeyPrefix = "bookbazaar:revoked:"

// TokenRevoker tracks revoked token IDs (jti) until the token would have expired.
type TokenRevoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

// MemoryTokenRevoker keeps revoked IDs in-memory (single instance only).
type MemoryTokenRevoker struct {
	mu   sync.Mutex
	jtis map[string]time.Time
	now  func() time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		jtis: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Revoke marks jti as revoked for ttl. Non-positive ttl is a no-op.
func (r *MemoryTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" || ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.jtis[jti] = now.Add(ttl)
	for id, expiry := range r.jtis {
		if now.After(expiry) {
			delete(r.jtis, id)
		}
	}
	return nil
}

// IsRevoked reports whether jti is currently revoked.
func (r *MemoryTokenRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.jtis[jti]
	if !ok {
		return false, nil
	}
	if r.now().After(expiry) {
		delete(r.jtis, jti)
		return false, nil
	}
	return true, nil
}

// RedisTokenRevoker stores revoked IDs in Redis with a TTL so entries clean themselves up.
type RedisTokenRevoker struct {
	client  redis.UniversalClient
	timeout time.Duration
}

// NewRedisTokenRevoker builds a Redis-backed revoker on a shared client.
func NewRedisTokenRevoker(client redis.UniversalClient) *RedisTokenRevoker {
	return &RedisTokenRevoker{client: client, timeout: 3 * time.Second}
}

// Revoke marks jti as revoked for ttl.
func (r *RedisTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" || ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Set(ctx, revocationKey(jti), "1", ttl).Err()
}

// IsRevoked checks whether jti is revoked.
func (r *RedisTokenRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	res, err := r.client.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

func revocationKey(jti string) string {
	return revocationKeyPrefix + jti
}
