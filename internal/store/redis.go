package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatmood/internal/metrics"
)

// RedisStore handles Redis operations for message deduplication.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// seenKey returns the key marking a message id as handled.
func seenKey(messageID string) string {
	return fmt.Sprintf("seen:message:%s", messageID)
}

// IsMessageSeen checks if a message id has been marked.
func (s *RedisStore) IsMessageSeen(ctx context.Context, messageID string) (bool, error) {
	defer observeRedis(time.Now())
	exists, err := s.client.Exists(ctx, seenKey(messageID)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

// MarkMessageSeen marks a message id with a TTL. It returns true only for the
// caller that set the key, so concurrent deliveries of one id get one winner.
func (s *RedisStore) MarkMessageSeen(ctx context.Context, messageID, owner string, ttl time.Duration) (bool, error) {
	defer observeRedis(time.Now())
	return s.client.SetNX(ctx, seenKey(messageID), owner, ttl).Result()
}

func observeRedis(start time.Time) {
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
}
