package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore is the default single-process session cache.
type MemoryStore struct {
	mu      sync.RWMutex
	current *Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(ctx context.Context) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Session{}, false, nil
	}
	return *m.current, true, nil
}

func (m *MemoryStore) Set(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &s
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

const redisSessionKey = "reportsync:session:main_login_token"

// redisSession is the wire form stored in redis; expiry travels as
// unix seconds so the record is readable from other tooling.
type redisSession struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiry_time"`
	CreatedAt int64  `json:"created_at"`
}

// RedisStore shares the session between processes. The redis TTL
// mirrors the token expiry so stale tokens age out on their own.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context) (Session, bool, error) {
	val, err := r.client.Get(ctx, redisSessionKey).Result()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("get session from redis: %w", err)
	}

	var rec redisSession
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Session{}, false, fmt.Errorf("unmarshal session: %w", err)
	}

	return Session{
		Token:     rec.Token,
		ExpiresAt: time.Unix(rec.ExpiresAt, 0),
		CreatedAt: time.Unix(rec.CreatedAt, 0),
	}, true, nil
}

func (r *RedisStore) Set(ctx context.Context, s Session) error {
	data, err := json.Marshal(redisSession{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.Unix(),
		CreatedAt: s.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := r.client.Set(ctx, redisSessionKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("set session in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, redisSessionKey).Err(); err != nil {
		return fmt.Errorf("delete session from redis: %w", err)
	}
	return nil
}
