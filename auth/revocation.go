package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocations stores signed-out tokens in Redis so every instance
// rejects them until they expire.
type RedisRevocations struct {
	client *redis.Client
	prefix string
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client, prefix: "taskboard:revoked:"}
}

func (r *RedisRevocations) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Revoke records token until the given time. Tokens that already expired are
// not recorded.
func (r *RedisRevocations) Revoke(ctx context.Context, token string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.SetNX(ctx, r.key(token), 1, ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
