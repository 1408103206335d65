package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OAuthState is the ephemeral CSRF-state record created by authorize
// and consumed by callback.
type OAuthState struct {
	UserID   string    `json:"user_id"`
	Platform string    `json:"platform"`
	IssuedAt time.Time `json:"issued_at"`
}

// StateCache is the injectable ephemeral key-value store for OAuth
// CSRF state. Entries are single-use: Consume deletes on first read.
// Entries are also evicted after their TTL regardless of use.
type StateCache interface {
	Put(ctx context.Context, token string, state OAuthState, ttl time.Duration) error
	Consume(ctx context.Context, token string) (OAuthState, bool, error)
}

type memoryStateEntry struct {
	state     OAuthState
	expiresAt time.Time
}

// MemoryStateCache is the single-node implementation: a mutex-guarded
// map with an explicit sweep task.
type MemoryStateCache struct {
	mu      sync.Mutex
	entries map[string]memoryStateEntry
	logger  *zap.Logger
	now     func() time.Time
}

func NewMemoryStateCache(logger *zap.Logger) *MemoryStateCache {
	return &MemoryStateCache{
		entries: make(map[string]memoryStateEntry),
		logger:  logger,
		now:     time.Now,
	}
}

func (c *MemoryStateCache) Put(ctx context.Context, token string, state OAuthState, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = memoryStateEntry{
		state:     state,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

func (c *MemoryStateCache) Consume(ctx context.Context, token string) (OAuthState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return OAuthState{}, false, nil
	}
	delete(c.entries, token)

	if c.now().After(entry.expiresAt) {
		return OAuthState{}, false, nil
	}
	return entry.state, true, nil
}

// Sweep evicts expired entries and returns how many were removed.
func (c *MemoryStateCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for token, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, token)
			removed++
		}
	}
	return removed
}

// StartSweeper runs the periodic eviction task until ctx is cancelled.
func (c *MemoryStateCache) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := c.Sweep(); removed > 0 {
					c.logger.Debug("Swept expired oauth states", zap.Int("removed", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RedisStateCache stores states in redis; TTL eviction is handled by
// the server, Consume uses GETDEL for single-use semantics.
type RedisStateCache struct {
	client *redis.Client
	prefix string
}

func NewRedisStateCache(client *redis.Client) *RedisStateCache {
	return &RedisStateCache{client: client, prefix: "oauth_state:"}
}

func (c *RedisStateCache) Put(ctx context.Context, token string, state OAuthState, ttl time.Duration) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+token, payload, ttl).Err()
}

func (c *RedisStateCache) Consume(ctx context.Context, token string) (OAuthState, bool, error) {
	payload, err := c.client.GetDel(ctx, c.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return OAuthState{}, false, nil
		}
		return OAuthState{}, false, err
	}

	var state OAuthState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return OAuthState{}, false, err
	}
	return state, true, nil
}
