package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists conversation state. Get returns nil (not an error) for a
// missing session.
type Store interface {
	Get(ctx context.Context, conversationID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, conversationID string) error
	Close() error
}

// StoreType names a session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	idleTTL     time.Duration
	now         func() time.Time
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithIdleTTL overrides how long an untouched conversation is retained.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.idleTTL = ttl }
}

// WithClock overrides the store's time source (used by tests).
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) { c.now = now }
}

// NewStore creates a session store for the given driver type.
// The Redis driver requires WithRedisClient.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{idleTTL: DefaultIdleTTL, now: time.Now}
	for _, opt := range opts {
		opt(config)
	}
	if config.idleTTL <= 0 {
		config.idleTTL = DefaultIdleTTL
	}

	switch storeType {
	case StoreTypeMemory:
		return &memoryStore{
			sessions: make(map[string]*Session),
			idleTTL:  config.idleTTL,
			now:      config.now,
		}, nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{
			client: config.redisClient,
			ttl:    config.idleTTL,
		}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}
