package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a shared Redis instance so horizontally
// scaled processes see the same sessions and revocations.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis at url and verifies connectivity.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) sessionKey(tokenID string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, tokenID)
}

func (r *RedisStore) blacklistKey(tokenID string) string {
	return fmt.Sprintf("%s:blacklist:%s", r.prefix, tokenID)
}

func (r *RedisStore) lockoutKey(key string) string {
	return fmt.Sprintf("%s:lockout:%s", r.prefix, key)
}

func (r *RedisStore) Put(ctx context.Context, tokenID string, s Session, ttl time.Duration) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.client.Set(ctx, r.sessionKey(tokenID), payload, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, tokenID string) (Session, error) {
	raw, err := r.client.Get(ctx, r.sessionKey(tokenID)).Bytes()
	if err == redis.Nil {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Extend(ctx context.Context, tokenID string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, r.sessionKey(tokenID), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, tokenID string) error {
	return r.client.Del(ctx, r.sessionKey(tokenID)).Err()
}

func (r *RedisStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// Token already expired; nothing to remember.
		return nil
	}
	return r.client.Set(ctx, r.blacklistKey(tokenID), "1", ttl).Err()
}

func (r *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.blacklistKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration) (int, error) {
	k := r.lockoutKey(key)
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, err
		}
	}
	return int(count), nil
}

func (r *RedisStore) Failures(ctx context.Context, key string) (int, error) {
	raw, err := r.client.Get(ctx, r.lockoutKey(key)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decode failure counter: %w", err)
	}
	return n, nil
}

func (r *RedisStore) ClearFailures(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.lockoutKey(key)).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ Store = (*RedisStore)(nil)
