package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore persists sessions as JSON values with a sliding TTL.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func sessionKey(conversationID string) string {
	return "yanit:session:" + conversationID
}

func (r *redisStore) Get(ctx context.Context, conversationID string) (*Session, error) {
	val, err := r.client.Get(ctx, sessionKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, err
	}

	// Refresh TTL on read so active conversations stay alive.
	_ = r.client.Expire(ctx, sessionKey(conversationID), r.ttl).Err()

	return &s, nil
}

func (r *redisStore) Put(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()
	val, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(s.ConversationID), val, r.ttl).Err()
}

func (r *redisStore) Delete(ctx context.Context, conversationID string) error {
	return r.client.Del(ctx, sessionKey(conversationID)).Err()
}

func (r *redisStore) Close() error {
	return r.client.Close()
}
