package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "session:revoked:"

// Revoker keeps a deny-list of logged out session ids in Redis. A nil
// client turns every call into a no-op.
type Revoker struct {
	cache *redis.Client
	now   func() time.Time
}

// NewRevoker builds a Redis-backed session deny-list.
func NewRevoker(cache *redis.Client) *Revoker {
	return &Revoker{cache: cache, now: time.Now}
}

// Revoke denies the session until its natural expiry.
func (r *Revoker) Revoke(ctx context.Context, sessionID string, expiresAt time.Time) error {
	if r == nil || r.cache == nil || sessionID == "" {
		return nil
	}
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, revokedPrefix+sessionID, 1, ttl).Err()
}

// Revoked reports whether the session was logged out.
func (r *Revoker) Revoked(ctx context.Context, sessionID string) (bool, error) {
	if r == nil || r.cache == nil {
		return false, nil
	}
	err := r.cache.Get(ctx, revokedPrefix+sessionID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
