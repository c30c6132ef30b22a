package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// SetCurrentToken caches the latest rotated-token payload for a session so
// display surfaces can poll it without touching the registry. The key expires
// with the token, so a stale projection can never outlive its validity.
func (r *Redis) SetCurrentToken(ctx context.Context, sessionID, payload string, validUntil time.Time) error {
	if r == nil || r.Client == nil {
		return nil
	}
	ttl := time.Until(validUntil)
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, "attendance:token:"+sessionID, payload, ttl).Err()
}

// CurrentToken reads the cached payload; empty when absent or expired.
func (r *Redis) CurrentToken(ctx context.Context, sessionID string) (string, error) {
	if r == nil || r.Client == nil {
		return "", nil
	}
	val, err := r.Client.Get(ctx, "attendance:token:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
