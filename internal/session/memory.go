package session

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore implements Store in process memory. Suitable for tests and
// single-process development; production deployments share a RedisStore.
type MemoryStore struct {
	sessions  *ttlcache.Cache[string, Session]
	blacklist *ttlcache.Cache[string, struct{}]
	failures  *ttlcache.Cache[string, int]
}

// NewMemoryStore constructs a MemoryStore and starts its expiry janitors.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		sessions:  ttlcache.New(ttlcache.WithDisableTouchOnHit[string, Session]()),
		blacklist: ttlcache.New(ttlcache.WithDisableTouchOnHit[string, struct{}]()),
		failures:  ttlcache.New(ttlcache.WithDisableTouchOnHit[string, int]()),
	}
	go m.sessions.Start()
	go m.blacklist.Start()
	go m.failures.Start()
	return m
}

func (m *MemoryStore) Put(_ context.Context, tokenID string, s Session, ttl time.Duration) error {
	m.sessions.Set(tokenID, s, ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, tokenID string) (Session, error) {
	item := m.sessions.Get(tokenID)
	if item == nil {
		return Session{}, ErrNotFound
	}
	return item.Value(), nil
}

func (m *MemoryStore) Extend(_ context.Context, tokenID string, ttl time.Duration) error {
	item := m.sessions.Get(tokenID)
	if item == nil {
		return ErrNotFound
	}
	m.sessions.Set(tokenID, item.Value(), ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, tokenID string) error {
	m.sessions.Delete(tokenID)
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.blacklist.Set(tokenID, struct{}{}, ttl)
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	return m.blacklist.Get(tokenID) != nil, nil
}

func (m *MemoryStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	item := m.failures.Get(key)
	if item == nil {
		m.failures.Set(key, 1, window)
		return 1, nil
	}
	count := item.Value() + 1
	remaining := time.Until(item.ExpiresAt())
	if remaining <= 0 {
		remaining = window
	}
	m.failures.Set(key, count, remaining)
	return count, nil
}

func (m *MemoryStore) Failures(_ context.Context, key string) (int, error) {
	item := m.failures.Get(key)
	if item == nil {
		return 0, nil
	}
	return item.Value(), nil
}

func (m *MemoryStore) ClearFailures(_ context.Context, key string) error {
	m.failures.Delete(key)
	return nil
}

func (m *MemoryStore) Close() error {
	m.sessions.Stop()
	m.blacklist.Stop()
	m.failures.Stop()
	return nil
}

var _ Store = (*MemoryStore)(nil)
